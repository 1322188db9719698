// Package lua hosts plugin code written in Lua on top of the plugin
// facade. Each plugin gets its own sandboxed interpreter; everything
// the script registers flows through the plugin's lifecycle node, so a
// single unload releases the interpreter and every host registration
// the script made.
package lua

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultCallTimeout bounds a single entry into Lua code. Long-running
// scripts are cancelled through the interpreter context.
const DefaultCallTimeout = 5 * time.Second

// ErrRuntimeClosed is returned when calling into a closed interpreter.
var ErrRuntimeClosed = errors.New("lua: runtime is closed")

// Runtime wraps one plugin's interpreter. gopher-lua states are not
// goroutine-safe; the mutex serializes every entry into Lua, including
// callbacks arriving from scheduler and event-bus goroutines.
type Runtime struct {
	mu          sync.Mutex
	owner       atomic.Uint64 // goroutine id currently inside enter, 0 when idle
	state       *lua.LState
	callTimeout time.Duration
	closed      bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithCallTimeout bounds each entry into Lua code.
func WithCallTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		r.callTimeout = d
	}
}

// NewRuntime creates a sandboxed interpreter: only the base, table,
// string, and math libraries are opened. io, os, debug, and package
// stay out; host access goes through the installed API modules
// instead.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(open.fn))
		L.Push(lua.LString(open.name))
		L.Call(1, 0)
	}

	// Base opens a handful of escape hatches we do not want scripts
	// to have even though io/os were never opened.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	r.state = L
	return r
}

// DoFile runs the plugin's entry script.
func (r *Runtime) DoFile(path string) error {
	return r.enter(func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// CallGlobal invokes a global function if it exists and is a function;
// a missing global is not an error (lifecycle hooks are optional).
func (r *Runtime) CallGlobal(name string, args ...lua.LValue) error {
	return r.enter(func(L *lua.LState) error {
		fn := L.GetGlobal(name)
		if fn.Type() != lua.LTFunction {
			return nil
		}
		return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	})
}

// call invokes a handler function held by the host (event handlers,
// command handlers, interval callbacks). Handlers fire from
// two places: inside an already-entered Lua call (a script executing a
// command it just registered), where taking the mutex again would
// deadlock, and from other goroutines (scheduler ticks, host event
// publishes), where skipping the mutex would race on the shared state.
// The owner marker tells the two apart: the owning goroutine goes
// straight in, everything else enters through the lock.
//
// build produces the call arguments and runs inside the entered call,
// because materializing values on the state is itself a mutation. A
// nil build means no arguments.
func (r *Runtime) call(fn *lua.LFunction, build func(L *lua.LState) []lua.LValue) error {
	run := func(L *lua.LState) error {
		var args []lua.LValue
		if build != nil {
			args = build(L)
		}
		return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	}
	if r.owner.Load() == goroutineID() {
		return r.nested(run)
	}
	return r.enter(run)
}

// nested runs on a state this goroutine already entered through the
// mutex.
func (r *Runtime) nested(run func(L *lua.LState) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return run(r.state)
}

// HasGlobal reports whether a global function is defined.
func (r *Runtime) HasGlobal(name string) bool {
	has := false
	r.enter(func(L *lua.LState) error {
		has = L.GetGlobal(name).Type() == lua.LTFunction
		return nil
	})
	return has
}

// SetGlobal installs a value into the interpreter's globals.
func (r *Runtime) SetGlobal(name string, value lua.LValue) {
	r.enter(func(L *lua.LState) error {
		L.SetGlobal(name, value)
		return nil
	})
}

// State exposes the interpreter for API module installation. Must only
// be used before the plugin loads or from within an enter'd call.
func (r *Runtime) State() *lua.LState {
	return r.state
}

// Close shuts the interpreter down. Later calls fail with
// ErrRuntimeClosed.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.state.Close()
}

// enter serializes access to the interpreter, applies the call
// timeout, and converts interpreter panics into errors.
func (r *Runtime) enter(fn func(L *lua.LState) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRuntimeClosed
	}

	r.owner.Store(goroutineID())
	defer r.owner.Store(0)

	ctx, cancel := context.WithTimeout(context.Background(), r.callTimeout)
	defer cancel()
	r.state.SetContext(ctx)
	defer r.state.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn(r.state)
}

// goroutineID parses the current goroutine's id from its stack header
// ("goroutine 123 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	id, _ := strconv.ParseUint(fields[1], 10, 64)
	return id
}
