package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// Component is anything that participates in the ownership tree.
// A parent unloads its components in the order they were added.
type Component interface {
	Load() error
	Unload() error
}

// Interval is a handle to a recurring task that can be cancelled.
// The scheduler that produced the handle is external to the node;
// the node is only responsible for calling Cancel on unload.
type Interval interface {
	Cancel()
}

// Initializer is the optional load hook for a Node. It runs after the
// node is marked loaded, so calling Load again from inside the hook is
// a no-op. The hook may spawn goroutines for work that outlives the
// Load call; Load does not wait for them.
type Initializer interface {
	Initialize() error
}

// Finalizer is the optional unload hook for a Node. It runs after
// children have been unloaded, intervals cancelled, and cleanups run.
type Finalizer interface {
	Teardown()
}

// Node is the owning unit of the component tree. It tracks child
// components, interval handles, and deferred cleanup callbacks, and
// releases all of them on Unload in a fixed order.
//
// The zero value is usable and starts unloaded. Hooks are attached
// with New and its options.
type Node struct {
	mu        sync.Mutex
	loaded    bool
	unloading bool

	children  []Component
	intervals []Interval
	cleanups  []func()

	initialize func() error
	teardown   func()
}

// Option configures a Node.
type Option func(*Node)

// WithInitialize sets the function invoked by Load.
func WithInitialize(fn func() error) Option {
	return func(n *Node) {
		n.initialize = fn
	}
}

// WithTeardown sets the function invoked by Unload after all owned
// resources have been released.
func WithTeardown(fn func()) Option {
	return func(n *Node) {
		n.teardown = fn
	}
}

// WithHooks wires the Initialize and/or Teardown methods of v as the
// node's hooks. Types embedding *Node pass themselves here.
func WithHooks(v any) Option {
	return func(n *Node) {
		if init, ok := v.(Initializer); ok {
			n.initialize = init.Initialize
		}
		if fin, ok := v.(Finalizer); ok {
			n.teardown = fin.Teardown
		}
	}
}

// New creates an unloaded Node.
func New(opts ...Option) *Node {
	n := &Node{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Loaded reports whether the node is currently loaded.
func (n *Node) Loaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loaded
}

// Load marks the node loaded and runs its initialization hook.
// Calling Load on an already-loaded node is a no-op. The loaded flag
// flips before the hook runs, so registrations made during
// initialization attach to a loaded node and re-entrant Load calls
// return immediately.
//
// A hook error is returned to the caller; the node remains loaded so
// that whatever the hook registered before failing is still released
// by Unload.
func (n *Node) Load() error {
	n.mu.Lock()
	if n.loaded {
		n.mu.Unlock()
		return nil
	}
	n.loaded = true
	init := n.initialize
	n.mu.Unlock()

	if init == nil {
		return nil
	}
	if err := init(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// Unload tears the node down. Calling Unload on an unloaded node, or
// re-entrantly while an unload is in progress, is a no-op.
//
// Teardown runs in strict phases: child components unload in the order
// they were added, then intervals are cancelled, then cleanup callbacks
// run in registration order, then the teardown hook runs, and finally
// the node is marked unloaded. All three collections are empty when
// Unload returns, so a later Load starts from a clean slate.
//
// Failures are isolated: a child unload error or a panicking cleanup
// does not skip the remaining phases. Everything that went wrong is
// aggregated into the returned error.
func (n *Node) Unload() error {
	n.mu.Lock()
	if !n.loaded || n.unloading {
		n.mu.Unlock()
		return nil
	}
	n.unloading = true
	children := n.children
	intervals := n.intervals
	cleanups := n.cleanups
	n.children = nil
	n.intervals = nil
	n.cleanups = nil
	n.mu.Unlock()

	// The state flip must survive every escape path, or a panicking
	// phase would leave the node wedged: loaded forever and all later
	// Unload calls no-oping on the unloading guard.
	defer func() {
		n.mu.Lock()
		n.loaded = false
		n.unloading = false
		n.mu.Unlock()
	}()

	var errs []error

	for _, child := range children {
		if err := safelyErr(child.Unload); err != nil {
			errs = append(errs, fmt.Errorf("unload child: %w", err))
		}
	}

	for _, iv := range intervals {
		if err := safely(iv.Cancel); err != nil {
			errs = append(errs, fmt.Errorf("cancel interval: %w", err))
		}
	}

	for _, cb := range cleanups {
		if err := safely(cb); err != nil {
			errs = append(errs, fmt.Errorf("cleanup: %w", err))
		}
	}

	if n.teardown != nil {
		if err := safely(n.teardown); err != nil {
			errs = append(errs, fmt.Errorf("teardown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Register queues a cleanup callback for the next unload. Callbacks
// run in registration order. Registering while unloaded is allowed;
// the callback waits for the next load/unload cycle. Duplicates are
// kept and invoked once per registration.
func (n *Node) Register(cb func()) {
	if cb == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleanups = append(n.cleanups, cb)
}

// RegisterInterval takes ownership of a recurring-task handle and
// returns it unchanged, so scheduling and registration compose:
//
//	iv := node.RegisterInterval(sched.Repeat(time.Minute, tick))
func (n *Node) RegisterInterval(h Interval) Interval {
	if h == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intervals = append(n.intervals, h)
	return h
}

// AddChild appends a component to the ownership list and returns it
// unchanged. The child is not loaded; the caller loads children it
// creates. Adding the same child twice yields two entries, which is
// harmless because Unload on the child is idempotent.
func (n *Node) AddChild(c Component) Component {
	if c == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children = append(n.children, c)
	return c
}

// RemoveChild removes the first entry identical to c, transferring
// lifecycle responsibility back to the caller. The child is not
// unloaded. Removing a component that was never added is a no-op.
// The argument is returned either way.
func (n *Node) RemoveChild(c Component) Component {
	if c == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, child := range n.children {
		if child == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
	return c
}

// safely runs fn and converts a panic into an error so later teardown
// phases still execute.
func safely(fn func()) error {
	return safelyErr(func() error {
		fn()
		return nil
	})
}

// safelyErr runs fn, keeping its error and converting a panic into one.
func safelyErr(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
