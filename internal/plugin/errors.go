package plugin

import "errors"

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin cannot be located.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyLoaded is returned when loading an already-loaded plugin
	// through the manager.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")

	// ErrPluginDisabled is returned when loading a plugin on the
	// disabled list.
	ErrPluginDisabled = errors.New("plugin is disabled")

	// ErrNoEntryPoint is returned when a plugin directory has no main
	// script.
	ErrNoEntryPoint = errors.New("plugin has no entry point")
)
