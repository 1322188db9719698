// Package lifecycle implements the component ownership tree that the
// Loreleaf extension host is built on.
//
// A Node owns three kinds of resources: child components, recurring
// interval handles, and deferred cleanup callbacks. Load marks the
// node loaded and runs its initialization hook; Unload releases every
// owned resource in a deterministic order and returns the node to its
// constructed state. Both calls are idempotent.
//
// Plugins and views embed a Node and register everything they create
// during initialization:
//
//	func (p *StatusPlugin) Initialize() error {
//	    p.Register(func() { p.commands.Unregister("status.toggle") })
//	    p.RegisterInterval(p.sched.Repeat(time.Minute, p.refresh))
//	    child := newCounterView(p.views)
//	    p.AddChild(child)
//	    return child.Load()
//	}
//
// When the host unloads the plugin, the child view unloads first, the
// interval is cancelled, and the command is unregistered, in exactly
// that order.
package lifecycle
