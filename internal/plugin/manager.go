package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Factory builds an unloaded Plugin from discovery info. The manager
// is factory-driven so the Lua runtime (or a test stub) decides what a
// plugin's hooks do.
type Factory func(info *Info, services Services) (*Plugin, error)

// Status is the manager's view of a plugin.
type Status int

const (
	// StatusUnloaded - plugin is discovered but not loaded.
	StatusUnloaded Status = iota

	// StatusLoaded - plugin is loaded and running.
	StatusLoaded

	// StatusError - the plugin's last lifecycle transition failed.
	StatusError
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusUnloaded:
		return "unloaded"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// EventHandler handles plugin manager events. Handlers must be
// non-blocking and must not call back into the Manager. Panics in
// handlers are recovered.
type EventHandler func(event ManagerEvent)

// ManagerEvent represents a plugin manager event.
type ManagerEvent struct {
	Type   ManagerEventType
	Plugin string
	Error  error
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventPluginLoaded is emitted when a plugin is loaded.
	EventPluginLoaded ManagerEventType = iota
	// EventPluginUnloaded is emitted when a plugin is unloaded.
	EventPluginUnloaded
	// EventPluginReloaded is emitted when a plugin is reloaded.
	EventPluginReloaded
	// EventPluginError is emitted when a plugin fails a transition.
	EventPluginError
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginUnloaded:
		return "unloaded"
	case EventPluginReloaded:
		return "reloaded"
	case EventPluginError:
		return "error"
	default:
		return "unknown"
	}
}

// entry is the manager's per-plugin record.
type entry struct {
	plugin *Plugin
	status Status
	err    error
}

// ManagerConfig configures the plugin manager.
type ManagerConfig struct {
	// PluginPaths are directories to search for plugins.
	PluginPaths []string

	// Disabled plugins are discovered but refuse to load.
	Disabled []string

	// Factory builds plugins from discovery info. Required.
	Factory Factory

	// Logger for lifecycle reporting. Defaults to slog.Default.
	Logger *slog.Logger
}

// Manager owns the root of every plugin's lifecycle tree. It loads and
// unloads plugins by name, keeps a deterministic load order, and keeps
// one plugin's failure from touching its siblings.
type Manager struct {
	mu sync.RWMutex

	loader  *Loader
	entries map[string]*entry

	// Plugin load order (for deterministic teardown)
	loadOrder []string

	eventHandlers []EventHandler

	config ManagerConfig
	logger *slog.Logger
}

// NewManager creates a new plugin manager.
func NewManager(config ManagerConfig) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loader:  NewLoader(WithPaths(config.PluginPaths...)),
		entries: make(map[string]*entry),
		config:  config,
		logger:  logger,
	}
}

// Discover searches for available plugins.
func (m *Manager) Discover() ([]*Info, error) {
	return m.loader.Discover()
}

// Load builds and loads a plugin by name.
func (m *Manager) Load(name string, services Services) (*Plugin, error) {
	if m.isDisabled(name) {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrPluginDisabled)
	}

	m.mu.Lock()
	if e, exists := m.entries[name]; exists && e.status == StatusLoaded {
		m.mu.Unlock()
		return nil, fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}
	m.mu.Unlock()

	info, err := m.loader.Find(name)
	if err != nil {
		return nil, err
	}

	p, err := m.config.Factory(info, services)
	if err != nil {
		m.record(name, nil, StatusError, err)
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return nil, fmt.Errorf("failed to build plugin %q: %w", name, err)
	}

	if err := p.Load(); err != nil {
		// Release whatever the failed initialization managed to
		// register, then park the plugin in the error state. The
		// failure stays contained to this plugin.
		if uerr := p.Unload(); uerr != nil {
			m.logger.Warn("cleanup after failed load also failed",
				"plugin", name, "error", uerr)
		}
		m.record(name, nil, StatusError, err)
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return nil, fmt.Errorf("failed to load plugin %q: %w", name, err)
	}

	m.record(name, p, StatusLoaded, nil)
	m.emitEvent(ManagerEvent{Type: EventPluginLoaded, Plugin: name})
	m.logger.Info("plugin loaded", "plugin", name, "version", info.Manifest.Version)
	return p, nil
}

// LoadAll discovers and loads every plugin. Individual failures are
// collected; the rest of the plugins still load.
func (m *Manager) LoadAll(services Services) error {
	infos, err := m.loader.Discover()
	if err != nil {
		return err
	}

	var loadErrors []error
	for _, info := range infos {
		if m.isDisabled(info.Name) {
			continue
		}
		if info.Err != nil {
			m.record(info.Name, nil, StatusError, info.Err)
			m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: info.Name, Error: info.Err})
			loadErrors = append(loadErrors, fmt.Errorf("%s: %w", info.Name, info.Err))
			continue
		}
		if _, err := m.Load(info.Name, services); err != nil {
			loadErrors = append(loadErrors, fmt.Errorf("%s: %w", info.Name, err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load %d plugins: %w", len(loadErrors), errors.Join(loadErrors...))
	}
	return nil
}

// Unload unloads a plugin by name and drops it from the registry.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	e, exists := m.entries[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	delete(m.entries, name)
	m.removeFromLoadOrder(name)
	m.mu.Unlock()

	if e.plugin == nil {
		// Errored entry that never produced a live plugin.
		m.emitEvent(ManagerEvent{Type: EventPluginUnloaded, Plugin: name})
		return nil
	}

	if err := e.plugin.Unload(); err != nil {
		m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return fmt.Errorf("failed to unload plugin %q: %w", name, err)
	}

	m.emitEvent(ManagerEvent{Type: EventPluginUnloaded, Plugin: name})
	m.logger.Info("plugin unloaded", "plugin", name)
	return nil
}

// UnloadAll unloads all plugins in reverse load order.
func (m *Manager) UnloadAll() error {
	m.mu.RLock()
	names := make([]string, len(m.loadOrder))
	for i, name := range m.loadOrder {
		names[len(m.loadOrder)-1-i] = name
	}
	m.mu.RUnlock()

	var unloadErrors []error
	for _, name := range names {
		if err := m.Unload(name); err != nil {
			unloadErrors = append(unloadErrors, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(unloadErrors) > 0 {
		return fmt.Errorf("failed to unload %d plugins: %w", len(unloadErrors), errors.Join(unloadErrors...))
	}
	return nil
}

// Reload tears a plugin all the way down and loads it from scratch,
// picking up on-disk changes via a discovery refresh. A plugin that was
// never loaded (a directory that just appeared) is simply loaded.
func (m *Manager) Reload(name string, services Services) error {
	if err := m.Unload(name); err != nil && !errors.Is(err, ErrPluginNotFound) {
		return fmt.Errorf("reload unload failed: %w", err)
	}

	if _, err := m.loader.Refresh(); err != nil {
		return fmt.Errorf("reload refresh failed: %w", err)
	}

	if _, err := m.Load(name, services); err != nil {
		return fmt.Errorf("reload load failed: %w", err)
	}

	m.emitEvent(ManagerEvent{Type: EventPluginReloaded, Plugin: name})
	return nil
}

// Get returns a loaded plugin by name.
func (m *Manager) Get(name string) (*Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entries[name]
	if !exists || e.plugin == nil {
		return nil, false
	}
	return e.plugin, true
}

// Status returns the manager's status for a plugin.
func (m *Manager) Status(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entries[name]
	if !exists {
		return StatusUnloaded
	}
	return e.status
}

// List returns loaded plugins in load order.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Plugin, 0, len(m.loadOrder))
	for _, name := range m.loadOrder {
		if e, exists := m.entries[name]; exists && e.plugin != nil {
			result = append(result, e.plugin)
		}
	}
	return result
}

// Count returns the number of tracked plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Errors returns all plugins in the error state with their errors.
func (m *Manager) Errors() map[string]error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errs := make(map[string]error)
	for name, e := range m.entries {
		if e.status == StatusError && e.err != nil {
			errs[name] = e.err
		}
	}
	return errs
}

// Loader returns the underlying loader for advanced operations.
func (m *Manager) Loader() *Loader {
	return m.loader
}

// Subscribe adds an event handler and returns an unsubscribe function.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.mu.Lock()
	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Set to nil instead of removing to avoid index shifting.
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

// record stores the manager's view of a plugin.
func (m *Manager) record(name string, p *Plugin, status Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[name] = &entry{plugin: p, status: status, err: err}
	for _, n := range m.loadOrder {
		if n == name {
			return
		}
	}
	m.loadOrder = append(m.loadOrder, name)
}

// isDisabled reports whether a plugin name is configured off.
func (m *Manager) isDisabled(name string) bool {
	for _, d := range m.config.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// emitEvent sends an event to all handlers, outside any locks and with
// panic recovery.
func (m *Manager) emitEvent(event ManagerEvent) {
	m.mu.RLock()
	handlers := make([]EventHandler, len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				recover()
			}()
			handler(event)
		}()
	}
}

// removeFromLoadOrder removes a name from the load order slice.
// Must be called with mu held.
func (m *Manager) removeFromLoadOrder(name string) {
	for i, n := range m.loadOrder {
		if n == name {
			m.loadOrder = append(m.loadOrder[:i], m.loadOrder[i+1:]...)
			return
		}
	}
}
