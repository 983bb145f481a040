package vm

import (
	"errors"
	"slices"
	"testing"
)

// ---------------------------------------------------------------------------
// Open / Close
// ---------------------------------------------------------------------------

func TestOpenCloseDefault(t *testing.T) {
	s, err := OpenDefault()
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	if s.RootContext() == nil {
		t.Fatal("RootContext() should not be nil")
	}
	if s.CurrentContext() != s.RootContext() {
		t.Error("current context should alias the root context")
	}
	if s.Collector().Disabled() {
		t.Error("collector should be enabled after Open")
	}
	if s.TopSelf().IsNil() {
		t.Error("TopSelf() should be set by bootstrap")
	}
	s.Close()
}

func TestOpenCloseRunsNoHooks(t *testing.T) {
	tr := NewTrackingAllocator(nil)
	s, err := Open(tr.Alloc, "ud")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.UserData() != "ud" {
		t.Errorf("UserData() = %v, want ud", s.UserData())
	}
	if s.HookCount() != 0 {
		t.Errorf("HookCount() = %d, want 0", s.HookCount())
	}
	closeAndCheck(t, s, tr)
}

func TestCloseNil(t *testing.T) {
	var s *State
	s.Close()
}

func TestOpenFailingAllocator(t *testing.T) {
	s, err := Open(FailingAlloc, nil)
	if s != nil {
		t.Fatal("Open() with a failing allocator should return no state")
	}
	if !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("Open() error = %v, want ErrAllocationFailure", err)
	}
}

func TestOpenIsAllOrNothing(t *testing.T) {
	opened := false
	for n := 0; n < 500 && !opened; n++ {
		tr := NewTrackingAllocator(NewLimitAllocator(n, nil))
		s, err := Open(tr.Alloc, nil)
		if err == nil {
			opened = true
			closeAndCheck(t, s, tr)
			continue
		}
		if s != nil {
			t.Fatalf("n=%d: Open() returned a state with error %v", n, err)
		}
		if !errors.Is(err, ErrAllocationFailure) {
			t.Errorf("n=%d: Open() error = %v, want ErrAllocationFailure", n, err)
		}
		// The state, heap page and root context come first; every later
		// failure happens inside bootstrap.
		if wantBoot := n >= 3; errors.Is(err, ErrBootstrap) != wantBoot {
			t.Errorf("n=%d: errors.Is(err, ErrBootstrap) = %v, want %v", n, !wantBoot, wantBoot)
		}
		if st := tr.Stats(); st.LiveBlocks != 0 || st.DoubleFrees != 0 {
			t.Errorf("n=%d: live=%d doubleFrees=%d after failed Open", n, st.LiveBlocks, st.DoubleFrees)
		}
	}
	if !opened {
		t.Fatal("Open() never succeeded")
	}
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

// orderCollector wraps a Heap and records the lifecycle calls it receives.
type orderCollector struct {
	*Heap
	events *[]string
}

func (c orderCollector) Init(s *State) error {
	*c.events = append(*c.events, "gc-init")
	if s.RootContext() != nil {
		*c.events = append(*c.events, "context-before-init")
	}
	return c.Heap.Init(s)
}

func (c orderCollector) Destroy(s *State) {
	if s.RootContext() == nil {
		*c.events = append(*c.events, "context-freed-before-destroy")
	}
	*c.events = append(*c.events, "gc-destroy")
	c.Heap.Destroy(s)
}

func (c orderCollector) SetDisabled(disabled bool) bool {
	if disabled {
		*c.events = append(*c.events, "gc-disable")
	} else {
		*c.events = append(*c.events, "gc-enable")
	}
	return c.Heap.SetDisabled(disabled)
}

func TestOpenCloseOrdering(t *testing.T) {
	var events []string
	gc := orderCollector{Heap: NewHeap(0), events: &events}
	boot := func(s *State) error {
		if !s.Collector().Disabled() {
			t.Error("bootstrap should run with the collector disabled")
		}
		if s.RootContext() == nil {
			t.Error("bootstrap should run after the root context exists")
		}
		events = append(events, "bootstrap")
		return nil
	}

	tr := NewTrackingAllocator(nil)
	s, err := Open(tr.Alloc, nil, WithCollector(gc), WithBootstrap(boot))
	if err != nil {
		t.Fatal(err)
	}
	s.RegisterShutdownHook(func(*State) { events = append(events, "hook") })
	closeAndCheck(t, s, tr)

	want := []string{"gc-init", "gc-disable", "bootstrap", "gc-enable", "hook", "gc-destroy"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestBootstrapFailureRestoresGCAndFreesEverything(t *testing.T) {
	var events []string
	gc := orderCollector{Heap: NewHeap(0), events: &events}
	boom := errors.New("boom")
	boot := func(s *State) error {
		u, err := s.CreateCodeUnit()
		if err != nil {
			return err
		}
		if _, err := s.NewProc(u); err != nil {
			return err
		}
		s.Release(u)
		return boom
	}

	tr := NewTrackingAllocator(nil)
	s, err := Open(tr.Alloc, nil, WithCollector(gc), WithBootstrap(boot))
	if s != nil {
		t.Fatal("Open() should not return a state when bootstrap fails")
	}
	if !errors.Is(err, ErrBootstrap) || !errors.Is(err, boom) {
		t.Errorf("Open() error = %v, want ErrBootstrap wrapping boom", err)
	}
	if gc.Disabled() {
		t.Error("collector should be re-enabled after failed bootstrap")
	}
	if st := tr.Stats(); st.LiveBlocks != 0 || st.DoubleFrees != 0 {
		t.Errorf("live=%d doubleFrees=%d after failed bootstrap", st.LiveBlocks, st.DoubleFrees)
	}
	want := []string{"gc-init", "gc-disable", "gc-enable", "gc-destroy"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestBootstrapPanicRestoresGC(t *testing.T) {
	gc := NewHeap(0)
	func() {
		defer func() { recover() }()
		Open(nil, nil, WithCollector(gc), WithBootstrap(func(*State) error {
			panic("bootstrap exploded")
		}))
	}()
	if gc.Disabled() {
		t.Error("collector should be re-enabled when bootstrap panics")
	}
}

// ---------------------------------------------------------------------------
// Bootstrap contents
// ---------------------------------------------------------------------------

func TestInitCoreDefinesKernel(t *testing.T) {
	tr := NewTrackingAllocator(nil)
	s, err := Open(tr.Alloc, nil)
	if err != nil {
		t.Fatal(err)
	}

	kernel := s.Global("$kernel")
	if kernel.Type() != TypeObject || kernel.Object().Kind() != KindProc {
		t.Fatalf("$kernel = %v, want a proc", kernel)
	}
	unit := kernel.Object().Code()
	if unit.RefCount() != 1 {
		t.Errorf("kernel unit RefCount() = %d, want 1 (owned by proc)", unit.RefCount())
	}
	if unit.ChildCount() != len(kernelMethods) {
		t.Errorf("kernel ChildCount() = %d, want %d", unit.ChildCount(), len(kernelMethods))
	}
	puts := unit.ChildAt(0)
	if puts.LiteralAt(0).Str() != "puts" {
		t.Errorf("first method literal = %v, want \"puts\"", puts.LiteralAt(0))
	}
	if puts.DebugInfo().Filename() != "(kernel)" {
		t.Errorf("debug filename = %q", puts.DebugInfo().Filename())
	}
	if s.SymbolName(puts.SymbolAt(0)) != "__puts" {
		t.Errorf("forwarded primitive = %q, want __puts", s.SymbolName(puts.SymbolAt(0)))
	}
	if s.Global("$0").Str() != "corestate" {
		t.Errorf("$0 = %v", s.Global("$0"))
	}
	if !s.Global("$missing").IsNil() {
		t.Error("unset global should be nil")
	}

	roots := 0
	s.EachCodeRoot(func(*CodeUnit) { roots++ })
	if roots != 1 {
		t.Errorf("EachCodeRoot visited %d units, want 1", roots)
	}

	st := s.Stats()
	if st.LiveCodeUnits != 1+len(kernelMethods) {
		t.Errorf("LiveCodeUnits = %d, want %d", st.LiveCodeUnits, 1+len(kernelMethods))
	}
	if st.HeapObjects != 2 {
		t.Errorf("HeapObjects = %d, want 2", st.HeapObjects)
	}

	// Code owned by procs is released when the collector is destroyed.
	closeAndCheck(t, s, tr)
}
