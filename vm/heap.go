package vm

import "fmt"

// ---------------------------------------------------------------------------
// Collector: the garbage-collected object heap
// ---------------------------------------------------------------------------

// Collector is the contract between the State and its garbage collector.
// Init runs before the root context exists; Destroy runs before it is freed.
type Collector interface {
	Init(s *State) error
	Destroy(s *State)
	// SetDisabled sets the disabled flag and returns its previous value.
	SetDisabled(disabled bool) bool
	Disabled() bool
}

// ObjectSpace is implemented by collectors that can allocate heap objects.
type ObjectSpace interface {
	NewObject(s *State, kind ObjectKind, class uint32) (*Object, error)
}

// ObjectKind distinguishes heap object layouts.
type ObjectKind uint8

const (
	KindPlain ObjectKind = iota
	// KindProc objects hold a counted reference to a code unit.
	KindProc
)

// Object is a heap object owned by the collector.
type Object struct {
	self   []byte
	kind   ObjectKind
	class  uint32
	unit   *CodeUnit
	marked bool
}

// Kind returns the object's layout.
func (o *Object) Kind() ObjectKind { return o.kind }

// Class returns the symbol id naming the object's class.
func (o *Object) Class() uint32 { return o.class }

// Code returns the code unit of a proc, or nil.
func (o *Object) Code() *CodeUnit { return o.unit }

func (o *Object) String() string {
	if o.kind == KindProc && o.unit != nil {
		return fmt.Sprintf("#<Proc:unit#%d>", o.unit.id)
	}
	return fmt.Sprintf("#<Object:%d>", o.class)
}

// GCStats counts collector activity.
type GCStats struct {
	Collections int
	Swept       int
	Live        int
}

// DefaultGCThreshold is the number of live objects that triggers a
// collection on the next allocation.
const DefaultGCThreshold = 1024

// heapPageSize is the bookkeeping block reserved by Init.
const heapPageSize = 256

// Heap is the default Collector: a non-moving mark-and-sweep heap. Objects
// created since the last ArenaRestore are treated as roots, along with the
// top-level self, global variables and the root context's stacks.
type Heap struct {
	page      []byte
	objects   []*Object
	arena     []*Object
	disabled  bool
	threshold int
	stats     GCStats
}

// NewHeap creates a heap that collects once threshold objects are live. A
// non-positive threshold means DefaultGCThreshold.
func NewHeap(threshold int) *Heap {
	if threshold <= 0 {
		threshold = DefaultGCThreshold
	}
	return &Heap{threshold: threshold}
}

// Init reserves the heap's bookkeeping page.
func (h *Heap) Init(s *State) error {
	page, err := s.malloc(heapPageSize)
	if err != nil {
		return err
	}
	h.page = page
	return nil
}

// Destroy frees every object regardless of reachability. Procs drop their
// code unit references here.
func (h *Heap) Destroy(s *State) {
	for _, o := range h.objects {
		h.freeObject(s, o)
	}
	h.objects = nil
	h.arena = nil
	h.stats.Live = 0
	s.free(h.page)
	h.page = nil
}

// SetDisabled implements Collector.
func (h *Heap) SetDisabled(disabled bool) bool {
	prev := h.disabled
	h.disabled = disabled
	return prev
}

// Disabled implements Collector.
func (h *Heap) Disabled() bool {
	return h.disabled
}

// Stats returns the heap's counters.
func (h *Heap) Stats() GCStats {
	st := h.stats
	st.Live = len(h.objects)
	return st
}

// Each visits every live object.
func (h *Heap) Each(fn func(*Object)) {
	for _, o := range h.objects {
		fn(o)
	}
}

// NewObject allocates an object. A collection may run first unless the heap
// is disabled. The new object is held by the arena until the arena is restored
// to an index saved before it was created.
func (h *Heap) NewObject(s *State, kind ObjectKind, class uint32) (*Object, error) {
	if !h.disabled && len(h.objects) >= h.threshold {
		h.Collect(s)
	}
	self, err := s.malloc(objectSize)
	if err != nil {
		return nil, err
	}
	o := &Object{self: self, kind: kind, class: class}
	h.objects = append(h.objects, o)
	h.arena = append(h.arena, o)
	return o, nil
}

// ArenaSave returns the current arena index.
func (h *Heap) ArenaSave() int {
	return len(h.arena)
}

// ArenaRestore drops arena protection for objects created after idx.
func (h *Heap) ArenaRestore(idx int) {
	if idx < len(h.arena) {
		clear(h.arena[idx:])
		h.arena = h.arena[:idx]
	}
}

// Collect runs a full mark-and-sweep and returns the number of objects freed.
// It does nothing while the heap is disabled.
func (h *Heap) Collect(s *State) int {
	if h.disabled {
		return 0
	}
	mark := func(o *Object) {
		if o != nil {
			o.marked = true
		}
	}
	for _, o := range h.arena {
		mark(o)
	}
	s.eachRoot(mark)

	live := h.objects[:0]
	swept := 0
	for _, o := range h.objects {
		if o.marked {
			o.marked = false
			live = append(live, o)
			continue
		}
		h.freeObject(s, o)
		swept++
	}
	clear(h.objects[len(live):])
	h.objects = live
	h.stats.Collections++
	h.stats.Swept += swept
	return swept
}

func (h *Heap) freeObject(s *State, o *Object) {
	if o.unit != nil {
		s.Release(o.unit)
		o.unit = nil
	}
	s.free(o.self)
	o.self = nil
}

// ---------------------------------------------------------------------------
// State helpers
// ---------------------------------------------------------------------------

// arena is implemented by collectors that protect newly created objects.
type arena interface {
	ArenaSave() int
	ArenaRestore(idx int)
}

// ArenaSave returns the collector's current arena index, or 0 when the
// collector keeps no arena.
func (s *State) ArenaSave() int {
	if a, ok := s.gc.(arena); ok {
		return a.ArenaSave()
	}
	return 0
}

// ArenaRestore releases arena protection for objects created since idx was
// saved. Code that creates objects in a loop should save before and restore
// after each iteration once the objects it keeps are reachable from a root.
func (s *State) ArenaRestore(idx int) {
	if a, ok := s.gc.(arena); ok {
		a.ArenaRestore(idx)
	}
}

// NewObject allocates a plain object of class through the State's collector.
func (s *State) NewObject(class uint32) (*Object, error) {
	space, ok := s.gc.(ObjectSpace)
	if !ok {
		return nil, ErrNoObjectSpace
	}
	return space.NewObject(s, KindPlain, class)
}

// NewProc wraps u in a proc object. The proc retains u; the caller keeps its
// own reference. Like NewObject, the proc stays in the arena until restored.
func (s *State) NewProc(u *CodeUnit) (*Object, error) {
	space, ok := s.gc.(ObjectSpace)
	if !ok {
		return nil, ErrNoObjectSpace
	}
	o, err := space.NewObject(s, KindProc, 0)
	if err != nil {
		return nil, err
	}
	s.Retain(u)
	o.unit = u
	return o, nil
}

// eachRoot visits every object directly reachable from the State.
func (s *State) eachRoot(fn func(*Object)) {
	fn(s.topSelf)
	if s.globals != nil {
		s.globals.each(func(_ uint32, v Value) {
			fn(v.obj)
		})
	}
	for _, c := range []*Context{s.rootCtx, s.ctx} {
		if c == nil {
			continue
		}
		for _, v := range c.stack.items {
			fn(v.obj)
		}
		for _, o := range c.ensure.items {
			fn(o)
		}
	}
}
