package lifecycle

import (
	"errors"
	"strings"
	"testing"
)

// recordingInterval records whether Cancel ran.
type recordingInterval struct {
	log  *[]string
	name string
}

func (r *recordingInterval) Cancel() {
	*r.log = append(*r.log, r.name)
}

func TestLoadIdempotent(t *testing.T) {
	calls := 0
	n := New(WithInitialize(func() error {
		calls++
		return nil
	}))

	for i := 0; i < 3; i++ {
		if err := n.Load(); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}

	if calls != 1 {
		t.Errorf("initialize ran %d times, want 1", calls)
	}
	if !n.Loaded() {
		t.Error("Loaded() = false, want true")
	}
}

func TestUnloadIdempotent(t *testing.T) {
	calls := 0
	n := New(WithTeardown(func() { calls++ }))

	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := n.Unload(); err != nil {
			t.Fatalf("Unload() error = %v", err)
		}
	}

	if calls != 1 {
		t.Errorf("teardown ran %d times, want 1", calls)
	}
	if n.Loaded() {
		t.Error("Loaded() = true, want false")
	}
}

func TestUnloadNeverLoaded(t *testing.T) {
	hookRan := false
	n := New(WithTeardown(func() { hookRan = true }))

	if err := n.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if hookRan {
		t.Error("teardown ran on a never-loaded node")
	}
}

func TestReentrantLoadIsNoOp(t *testing.T) {
	calls := 0
	var n *Node
	n = New(WithInitialize(func() error {
		calls++
		return n.Load() // must not recurse
	}))

	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("initialize ran %d times, want 1", calls)
	}
}

func TestChildrenUnloadInInsertionOrder(t *testing.T) {
	var log []string
	parent := New()
	for _, name := range []string{"c1", "c2", "c3"} {
		name := name
		child := New(WithTeardown(func() { log = append(log, name) }))
		parent.AddChild(child)
		if err := child.Load(); err != nil {
			t.Fatalf("child Load() error = %v", err)
		}
	}

	if err := parent.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := parent.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}

	want := "c1,c2,c3"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("unload order = %q, want %q", got, want)
	}
}

func TestCleanupsRunInRegistrationOrder(t *testing.T) {
	var log []string
	n := New()
	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	n.Register(func() { log = append(log, "d1") })
	n.Register(func() { log = append(log, "d2") })

	if err := n.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}

	want := "d1,d2"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("cleanup order = %q, want %q", got, want)
	}
}

func TestUnloadPhaseOrdering(t *testing.T) {
	var log []string
	var root *Node
	sched := &recordingInterval{log: &log, name: "cancel"}

	child := New(WithTeardown(func() { log = append(log, "child") }))
	root = New(
		WithInitialize(func() error {
			root.AddChild(child)
			if err := child.Load(); err != nil {
				return err
			}
			root.RegisterInterval(sched)
			root.Register(func() { log = append(log, "cleanup") })
			return nil
		}),
		WithTeardown(func() { log = append(log, "teardown") }),
	)

	if err := root.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := root.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}

	want := "child,cancel,cleanup,teardown"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("phase order = %q, want %q", got, want)
	}
	if root.Loaded() {
		t.Error("Loaded() = true after unload, want false")
	}
}

func TestCleanSlateAfterReload(t *testing.T) {
	ran := 0
	n := New()
	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	n.Register(func() { ran++ })
	if err := n.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if ran != 1 {
		t.Fatalf("cleanup ran %d times, want 1", ran)
	}

	// Second cycle must not see residue from the first.
	if err := n.Load(); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if err := n.Unload(); err != nil {
		t.Fatalf("second Unload() error = %v", err)
	}
	if ran != 1 {
		t.Errorf("cleanup ran %d times after reload, want 1", ran)
	}
}

func TestDuplicateCallbackInvokedTwice(t *testing.T) {
	ran := 0
	cb := func() { ran++ }

	n := New()
	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	n.Register(cb)
	n.Register(cb)
	if err := n.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}

	if ran != 2 {
		t.Errorf("callback ran %d times, want 2", ran)
	}
}

func TestRegisterWhileUnloadedQueuesForNextCycle(t *testing.T) {
	ran := 0
	n := New()
	n.Register(func() { ran++ })

	if ran != 0 {
		t.Fatal("callback ran before any unload")
	}
	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := n.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if ran != 1 {
		t.Errorf("callback ran %d times, want 1", ran)
	}
}

func TestRemoveChildDoesNotUnload(t *testing.T) {
	unloaded := false
	parent := New()
	child := New(WithTeardown(func() { unloaded = true }))

	if got := parent.AddChild(child); got != Component(child) {
		t.Error("AddChild did not return its argument")
	}
	if got := parent.RemoveChild(child); got != Component(child) {
		t.Error("RemoveChild did not return its argument")
	}

	if err := child.Load(); err != nil {
		t.Fatalf("child Load() error = %v", err)
	}
	if err := parent.Load(); err != nil {
		t.Fatalf("parent Load() error = %v", err)
	}
	if err := parent.Unload(); err != nil {
		t.Fatalf("parent Unload() error = %v", err)
	}

	if unloaded {
		t.Error("removed child was unloaded by former parent")
	}
	if !child.Loaded() {
		t.Error("removed child lost its loaded state")
	}
}

func TestRemoveChildMissingIsNoOp(t *testing.T) {
	parent := New()
	stranger := New()
	if got := parent.RemoveChild(stranger); got != Component(stranger) {
		t.Error("RemoveChild did not return its argument")
	}
}

func TestFailingCleanupDoesNotSkipRemainingTeardown(t *testing.T) {
	var log []string
	n := New(WithTeardown(func() { log = append(log, "teardown") }))
	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	n.RegisterInterval(&recordingInterval{log: &log, name: "cancel"})
	n.Register(func() { panic("broken disposable") })
	n.Register(func() { log = append(log, "survivor") })

	err := n.Unload()
	if err == nil {
		t.Fatal("Unload() error = nil, want panic surfaced as error")
	}
	if !strings.Contains(err.Error(), "broken disposable") {
		t.Errorf("Unload() error = %v, want mention of panic value", err)
	}

	want := "cancel,survivor,teardown"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("teardown progression = %q, want %q", got, want)
	}
	if n.Loaded() {
		t.Error("Loaded() = true after failed unload, want false")
	}
}

// explodingComponent is a non-Node component whose Unload panics.
type explodingComponent struct{}

func (explodingComponent) Load() error   { return nil }
func (explodingComponent) Unload() error { panic("backing view lost") }

func TestPanickingChildUnloadDoesNotSkipRemainingPhases(t *testing.T) {
	var log []string
	n := New(WithTeardown(func() { log = append(log, "teardown") }))
	if err := n.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	n.AddChild(explodingComponent{})
	n.RegisterInterval(&recordingInterval{log: &log, name: "cancel"})
	n.Register(func() { log = append(log, "cleanup") })

	err := n.Unload()
	if err == nil {
		t.Fatal("Unload() error = nil, want child panic surfaced as error")
	}
	if !strings.Contains(err.Error(), "backing view lost") {
		t.Errorf("Unload() error = %v, want mention of panic value", err)
	}

	want := "cancel,cleanup,teardown"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("phases after child panic = %q, want %q", got, want)
	}
	if n.Loaded() {
		t.Fatal("Loaded() = true after unload, want false")
	}

	// The node is not wedged: it unloads cleanly and reloads.
	if err := n.Unload(); err != nil {
		t.Errorf("second Unload() error = %v, want nil no-op", err)
	}
	if err := n.Load(); err != nil {
		t.Errorf("Load() after failed unload error = %v", err)
	}
}

func TestInitializeErrorPropagatesButNodeStaysLoaded(t *testing.T) {
	wantErr := errors.New("boom")
	cleaned := false

	var n *Node
	n = New(WithInitialize(func() error {
		n.Register(func() { cleaned = true })
		return wantErr
	}))

	err := n.Load()
	if !errors.Is(err, wantErr) {
		t.Fatalf("Load() error = %v, want %v", err, wantErr)
	}
	if !n.Loaded() {
		t.Fatal("node unloaded itself after hook failure")
	}

	// What the hook managed to register is still released.
	if err := n.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if !cleaned {
		t.Error("cleanup registered before hook failure did not run")
	}
}

func TestDuplicateChildAbsorbedByIdempotentUnload(t *testing.T) {
	unloads := 0
	parent := New()
	child := New(WithTeardown(func() { unloads++ }))

	parent.AddChild(child)
	parent.AddChild(child)
	if err := child.Load(); err != nil {
		t.Fatalf("child Load() error = %v", err)
	}
	if err := parent.Load(); err != nil {
		t.Fatalf("parent Load() error = %v", err)
	}
	if err := parent.Unload(); err != nil {
		t.Fatalf("parent Unload() error = %v", err)
	}

	if unloads != 1 {
		t.Errorf("child teardown ran %d times, want 1", unloads)
	}
}
