package vm

import (
	"errors"
	"testing"
)

func TestHeapCollectSweepsUnrooted(t *testing.T) {
	s, tr := openBare(t)
	h := s.Collector().(*Heap)
	mark := h.ArenaSave()

	kept, _ := s.NewObject(1)
	s.SetGlobal("$kept", FromObject(kept))
	for i := 0; i < 5; i++ {
		s.NewObject(2)
	}
	h.ArenaRestore(mark)

	if swept := h.Collect(s); swept != 5 {
		t.Errorf("Collect() = %d, want 5", swept)
	}
	st := h.Stats()
	if st.Live != 1 || st.Collections != 1 || st.Swept != 5 {
		t.Errorf("Stats() = %+v", st)
	}
	closeAndCheck(t, s, tr)
}

func TestHeapCollectReleasesProcCode(t *testing.T) {
	s, tr := openBare(t)
	h := s.Collector().(*Heap)
	mark := h.ArenaSave()

	u := mustUnit(t, s)
	if _, err := s.NewProc(u); err != nil {
		t.Fatal(err)
	}
	if u.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", u.RefCount())
	}
	h.ArenaRestore(mark)
	h.Collect(s)
	if u.RefCount() != 1 {
		t.Errorf("RefCount() after sweep = %d, want 1", u.RefCount())
	}
	s.Release(u)
	closeAndCheck(t, s, tr)
}

func TestHeapDisabledDoesNotCollect(t *testing.T) {
	s, tr := openBare(t)
	h := s.Collector().(*Heap)
	mark := h.ArenaSave()
	s.NewObject(0)
	h.ArenaRestore(mark)

	if prev := h.SetDisabled(true); prev {
		t.Error("heap should start enabled")
	}
	if swept := h.Collect(s); swept != 0 {
		t.Errorf("Collect() while disabled = %d, want 0", swept)
	}
	h.SetDisabled(false)
	if swept := h.Collect(s); swept != 1 {
		t.Errorf("Collect() = %d, want 1", swept)
	}
	closeAndCheck(t, s, tr)
}

func TestHeapThresholdTriggersCollection(t *testing.T) {
	s, tr := openBare(t, WithGCThreshold(4))
	h := s.Collector().(*Heap)
	for i := 0; i < 4; i++ {
		mark := h.ArenaSave()
		s.NewObject(0)
		h.ArenaRestore(mark)
	}
	s.NewObject(0)
	if h.Stats().Collections != 1 {
		t.Errorf("Collections = %d, want 1", h.Stats().Collections)
	}
	closeAndCheck(t, s, tr)
}

func TestContextRootsSurviveCollection(t *testing.T) {
	s, tr := openBare(t)
	h := s.Collector().(*Heap)
	c := s.RootContext()
	c.GrowStack(s, 1)

	mark := h.ArenaSave()
	onStack, _ := s.NewObject(0)
	ensure, _ := s.NewObject(0)
	h.ArenaRestore(mark)
	c.Stack()[0] = FromObject(onStack)
	c.PushEnsure(s, ensure)

	if swept := h.Collect(s); swept != 0 {
		t.Errorf("Collect() = %d, want 0", swept)
	}
	closeAndCheck(t, s, tr)
}

// bareCollector satisfies Collector without an object space.
type bareCollector struct{ disabled bool }

func (c *bareCollector) Init(*State) error { return nil }
func (c *bareCollector) Destroy(*State)    {}
func (c *bareCollector) Disabled() bool    { return c.disabled }
func (c *bareCollector) SetDisabled(d bool) bool {
	prev := c.disabled
	c.disabled = d
	return prev
}

func TestNoObjectSpace(t *testing.T) {
	s, tr := openBare(t, WithCollector(&bareCollector{}))
	if _, err := s.NewObject(0); !errors.Is(err, ErrNoObjectSpace) {
		t.Errorf("NewObject() error = %v, want ErrNoObjectSpace", err)
	}
	u := mustUnit(t, s)
	if _, err := s.NewProc(u); !errors.Is(err, ErrNoObjectSpace) {
		t.Errorf("NewProc() error = %v, want ErrNoObjectSpace", err)
	}
	if u.RefCount() != 1 {
		t.Error("failed NewProc should not retain")
	}
	s.Release(u)
	if s.Stats().HeapObjects != 0 {
		t.Error("bare collector reports no heap objects")
	}
	closeAndCheck(t, s, tr)
}

func TestOpenReleasesBootstrapArena(t *testing.T) {
	tr := NewTrackingAllocator(nil)
	s, err := Open(tr.Alloc, nil, WithGCThreshold(4))
	if err != nil {
		t.Fatal(err)
	}
	h := s.Collector().(*Heap)
	if n := s.ArenaSave(); n != 0 {
		t.Fatalf("arena after Open = %d, want 0", n)
	}

	for i := 0; i < 20; i++ {
		mark := s.ArenaSave()
		if _, err := s.NewObject(0); err != nil {
			t.Fatal(err)
		}
		s.ArenaRestore(mark)
	}
	st := h.Stats()
	if st.Swept == 0 || st.Live > 4 {
		t.Errorf("Stats() = %+v, want unrooted objects swept and live <= 4", st)
	}

	h.Collect(s)
	if st := h.Stats(); st.Live != 2 {
		t.Errorf("Live after Collect = %d, want 2 (top self and $kernel)", st.Live)
	}
	if k := s.Global("$kernel"); k.Object().Code().RefCount() != 1 {
		t.Error("$kernel proc should survive collection")
	}
	closeAndCheck(t, s, tr)
}

func TestArenaPinsUntilRestored(t *testing.T) {
	s, tr := openBare(t)
	h := s.Collector().(*Heap)
	mark := s.ArenaSave()
	for i := 0; i < 5; i++ {
		s.NewObject(0)
	}
	if swept := h.Collect(s); swept != 0 {
		t.Errorf("Collect() with arena held = %d, want 0", swept)
	}
	s.ArenaRestore(mark)
	if swept := h.Collect(s); swept != 5 {
		t.Errorf("Collect() after restore = %d, want 5", swept)
	}
	closeAndCheck(t, s, tr)
}

func TestArenaWithoutHeap(t *testing.T) {
	s, tr := openBare(t, WithCollector(&bareCollector{}))
	if s.ArenaSave() != 0 {
		t.Error("collector without an arena should report 0")
	}
	s.ArenaRestore(0)
	closeAndCheck(t, s, tr)
}
