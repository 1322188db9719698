package plugin

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loreleaf/loreleaf/internal/command"
	"github.com/loreleaf/loreleaf/internal/event"
	"github.com/loreleaf/loreleaf/internal/lifecycle"
	"github.com/loreleaf/loreleaf/internal/schedule"
	"github.com/loreleaf/loreleaf/internal/storage"
	"github.com/loreleaf/loreleaf/internal/view"
)

// Services bundles the host capabilities handed to every plugin at
// construction. Plugins never reach for globals; everything they are
// allowed to touch arrives here.
type Services struct {
	Commands  *command.Registry
	Events    *event.Bus
	Views     *view.Registry
	Scheduler *schedule.Scheduler
	Data      *storage.Store
	Logger    *slog.Logger
}

// Log returns the configured logger or slog.Default.
func (s Services) Log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Plugin is the extension specialization of the lifecycle tree. It
// couples a lifecycle node with a manifest and the host services, and
// offers convenience registrations that perform a host side effect now
// and queue its exact reversal on the node. All teardown flows through
// the node's single cleanup list, so ordering has one source of truth.
type Plugin struct {
	*lifecycle.Node

	manifest *Manifest
	services Services
}

// New creates an unloaded Plugin. Lifecycle hooks (initialize and
// teardown behavior) are supplied through lifecycle options, typically
// lifecycle.WithHooks(self) from an embedding type.
func New(manifest *Manifest, services Services, opts ...lifecycle.Option) (*Plugin, error) {
	if manifest == nil {
		return nil, ErrNilManifest
	}
	return &Plugin{
		Node:     lifecycle.New(opts...),
		manifest: manifest,
		services: services,
	}, nil
}

// Name returns the plugin's unique name.
func (p *Plugin) Name() string {
	return p.manifest.Name
}

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *Manifest {
	return p.manifest
}

// Services returns the host capability bundle.
func (p *Plugin) Services() Services {
	return p.services
}

// source identifies this plugin in host registries.
func (p *Plugin) source() string {
	return "plugin:" + p.manifest.Name
}

// AddCommand registers a command with the host and queues its removal
// for unload. The command's Source is stamped with the plugin name.
func (p *Plugin) AddCommand(cmd *command.Command) error {
	if cmd == nil {
		return command.ErrMissingID
	}
	cmd.Source = p.source()
	if err := p.services.Commands.Register(cmd); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}

	id := cmd.ID
	p.Register(func() { p.services.Commands.Unregister(id) })
	return nil
}

// RegisterEvent subscribes to a host event topic and queues the
// unsubscribe for unload.
func (p *Plugin) RegisterEvent(topic string, handler event.Handler) (*event.Subscription, error) {
	sub, err := p.services.Events.Subscribe(topic, handler)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	p.Register(func() { p.services.Events.Unsubscribe(sub) })
	return sub, nil
}

// RegisterView binds a view type to a factory and queues the unbind
// for unload.
func (p *Plugin) RegisterView(viewType string, factory view.Factory) error {
	if err := p.services.Views.Register(viewType, factory); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	p.Register(func() { p.services.Views.Unregister(viewType) })
	return nil
}

// RegisterExtensions maps file extensions to a view type this plugin
// registered and queues the unmapping for unload.
func (p *Plugin) RegisterExtensions(exts []string, viewType string) error {
	if err := p.services.Views.RegisterExtensions(exts, viewType); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	owned := append([]string{}, exts...)
	p.Register(func() { p.services.Views.UnregisterExtensions(owned) })
	return nil
}

// Repeat schedules a recurring task and hands its handle to the node,
// so the task stops when the plugin unloads.
func (p *Plugin) Repeat(d time.Duration, fn func()) lifecycle.Interval {
	return p.RegisterInterval(p.services.Scheduler.Repeat(d, fn))
}

// LoadData returns the plugin's stored settings with manifest defaults
// filled in for missing keys. Never fails; a missing or corrupt
// document yields the defaults alone.
func (p *Plugin) LoadData() map[string]any {
	data := p.services.Data.Load(p.manifest.Name)
	for k, v := range p.manifest.SettingsDefaults {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}
	return data
}

// SaveData persists the plugin's settings. Failures are logged by the
// store; the plugin's lifecycle is never affected.
func (p *Plugin) SaveData(data map[string]any) {
	if !p.services.Data.Save(p.manifest.Name, data) {
		p.services.Log().Warn("settings not saved", "plugin", p.Name())
	}
}
