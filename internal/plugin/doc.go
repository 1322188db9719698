// Package plugin provides the extension system for Loreleaf.
//
// A plugin is a directory with a plugin.json manifest and a Lua entry
// point. The Manager discovers plugins through the Loader, builds each
// one through a Factory, and owns the root of its lifecycle tree.
//
// # Lifecycle
//
// Every plugin is a lifecycle node. Load marks it loaded and runs its
// initialization; Unload releases everything it registered, in order:
// child components first, then interval handles, then deferred cleanup
// callbacks, then the plugin's own teardown. Both calls are
// idempotent, and a plugin can only be restarted by unloading it
// completely and loading it again.
//
// # Registrations
//
// The Plugin type wraps every host capability in a pairing of "do the
// side effect now, queue its reversal on the node":
//
//	p.AddCommand(&command.Command{ID: "daily-notes.open", ...})
//	p.RegisterEvent("vault.change", onChange)
//	p.RegisterView("calendar", newCalendarView)
//	p.RegisterExtensions([]string{"ics"}, "calendar")
//	p.Repeat(time.Minute, refresh)
//
// Nothing else mutates the node's collections, so teardown ordering
// has a single source of truth.
//
// # Plugin structure
//
//	~/.config/loreleaf/plugins/daily-notes/
//	├── plugin.json    # Manifest
//	└── init.lua       # Entry point
//
// The manifest names the plugin and its contributions:
//
//	{
//	  "name": "daily-notes",
//	  "version": "1.0.0",
//	  "displayName": "Daily Notes",
//	  "main": "init.lua",
//	  "commands": [{"id": "daily-notes.open", "title": "Open today's note"}],
//	  "settingsDefaults": {"folder": "journal"}
//	}
//
// # Failure isolation
//
// Plugins are independent. A plugin whose initialization fails is
// unloaded (releasing whatever it managed to register) and parked in
// the error state; sibling plugins load and unload as if it did not
// exist. Settings persistence never fails loudly: reads of missing or
// corrupt data degrade to the manifest defaults and writes are logged,
// so storage trouble cannot corrupt a lifecycle transition.
package plugin
