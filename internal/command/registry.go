// Package command implements the host command registry that plugins
// contribute commands to.
package command

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	// ErrDuplicateCommand is returned when registering an ID that is
	// already taken.
	ErrDuplicateCommand = errors.New("command: duplicate id")

	// ErrCommandNotFound is returned when executing or unregistering
	// an unknown ID.
	ErrCommandNotFound = errors.New("command: not found")

	// ErrMissingID is returned when registering a command without an ID.
	ErrMissingID = errors.New("command: id is required")

	// ErrNilHandler is returned when registering a command without a
	// handler.
	ErrNilHandler = errors.New("command: handler is nil")
)

// Command is an invocable action contributed to the host.
type Command struct {
	// ID uniquely identifies the command (e.g. "daily-notes.open").
	ID string

	// Title is the human-readable name shown in the command palette.
	Title string

	// Source identifies the contributor (e.g. "plugin:daily-notes"),
	// used for bulk cleanup.
	Source string

	// Handler runs the command.
	Handler func(args map[string]any) error
}

// Registry holds the host's commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
	}
}

// Register adds a command. IDs are unique; registering a taken ID
// fails with ErrDuplicateCommand.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.ID == "" {
		return ErrMissingID
	}
	if cmd.Handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[cmd.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.ID)
	}
	r.commands[cmd.ID] = cmd
	return nil
}

// Unregister removes a command by ID. Returns true if it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[id]; !exists {
		return false
	}
	delete(r.commands, id)
	return true
}

// UnregisterBySource removes every command contributed by source and
// returns how many were removed.
func (r *Registry) UnregisterBySource(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, cmd := range r.commands {
		if cmd.Source == source {
			delete(r.commands, id)
			removed++
		}
	}
	return removed
}

// Get returns a command by ID.
func (r *Registry) Get(id string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[id]
	return cmd, ok
}

// Has reports whether a command is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Execute runs a command by ID with the given arguments.
func (r *Registry) Execute(id string, args map[string]any) error {
	r.mu.RLock()
	cmd, ok := r.commands[id]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, id)
	}
	return cmd.Handler(args)
}

// List returns all commands sorted by ID.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
