package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("corestate.vm")

// ---------------------------------------------------------------------------
// State: the interpreter's process-wide state
// ---------------------------------------------------------------------------

// State is one interpreter instance. It owns its allocator binding, its
// collector, the root execution context, the shutdown hook registry, and the
// symbol and global tables. A State is not safe for concurrent use.
type State struct {
	id     uuid.UUID
	self   []byte
	allocf AllocFunc
	ud     any

	gc      Collector
	rootCtx *Context
	ctx     *Context
	hooks   hookRegistry
	symbols *SymbolTable
	globals *GlobalTable
	topSelf *Object

	nextUnitID uint64
	liveUnits  int
}

// Open creates a State whose memory is routed through allocf (DefaultAlloc
// when nil); ud is passed back to every allocator call.
//
// Construction is all-or-nothing: if any step fails, everything acquired so
// far is released and no State is returned. Bootstrap failures are reported
// wrapped in ErrBootstrap.
func Open(allocf AllocFunc, ud any, opts ...Option) (*State, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if allocf == nil {
		allocf = DefaultAlloc
	}

	self := allocf(nil, nil, stateSize, ud)
	if self == nil {
		log.Errorf("cannot allocate state")
		return nil, fmt.Errorf("%w: state", ErrAllocationFailure)
	}
	s := newState(self, allocf, ud, o)

	if err := s.gc.Init(s); err != nil {
		s.abandon()
		return nil, fmt.Errorf("gc init: %w", err)
	}
	ctx, err := s.createRootContext()
	if err != nil {
		s.gc.Destroy(s)
		s.abandon()
		return nil, fmt.Errorf("root context: %w", err)
	}
	s.rootCtx = ctx
	s.ctx = ctx

	if err := s.runBootstrap(o.bootstrap); err != nil {
		log.Errorf("bootstrap of state %s failed: %s", s.id, err)
		s.Close()
		return nil, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	// Bootstrap objects are reachable from top self and the globals.
	s.ArenaRestore(0)
	log.Debugf("opened state %s", s.id)
	return s, nil
}

// OpenDefault opens a State on the default allocator.
func OpenDefault(opts ...Option) (*State, error) {
	return Open(nil, nil, opts...)
}

// newState wires every field of a fresh State to its empty value.
func newState(self []byte, allocf AllocFunc, ud any, o options) *State {
	gc := o.collector
	if gc == nil {
		gc = NewHeap(o.gcThreshold)
	}
	return &State{
		id:      uuid.New(),
		self:    self,
		allocf:  allocf,
		ud:      ud,
		gc:      gc,
		hooks:   newHookRegistry(o.hookStrategy, o.hookCapacity),
		symbols: NewSymbolTable(),
		globals: NewGlobalTable(),
	}
}

// abandon releases a State that never finished construction.
func (s *State) abandon() {
	s.globals.free(s)
	s.symbols.free(s)
	s.free(s.self)
	s.self = nil
}

// runBootstrap runs boot with the collector disabled. The previous flag is
// restored on every exit path.
func (s *State) runBootstrap(boot Bootstrapper) error {
	if boot == nil {
		return nil
	}
	restore := s.disableGC()
	defer restore()
	return boot(s)
}

func (s *State) disableGC() (restore func()) {
	prev := s.gc.SetDisabled(true)
	return func() {
		s.gc.SetDisabled(prev)
	}
}

// Close runs the shutdown hooks in reverse registration order, destroys the
// collector, frees the root context and the global and symbol tables, and
// finally releases the State itself. Close on a nil State is a no-op; closing
// the same State twice is a caller error.
func (s *State) Close() {
	if s == nil {
		return
	}
	id := s.id
	s.runShutdownHooks()

	// The collector may still touch context-rooted values while tearing down.
	s.gc.Destroy(s)
	s.FreeContext(s.rootCtx)
	s.rootCtx = nil
	s.ctx = nil
	s.topSelf = nil

	s.globals.free(s)
	s.symbols.free(s)
	s.free(s.self)
	s.self = nil
	log.Debugf("closed state %s", id)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// ID returns the State's instance id.
func (s *State) ID() uuid.UUID { return s.id }

// UserData returns the value given to Open for the allocator.
func (s *State) UserData() any { return s.ud }

// TopSelf returns the implicit top-level receiver.
func (s *State) TopSelf() Value { return FromObject(s.topSelf) }

// RootContext returns the context created by Open.
func (s *State) RootContext() *Context { return s.rootCtx }

// CurrentContext returns the context currently executing.
func (s *State) CurrentContext() *Context { return s.ctx }

// Collector returns the State's garbage collector.
func (s *State) Collector() Collector { return s.gc }

// Symbols returns the State's symbol table.
func (s *State) Symbols() *SymbolTable { return s.symbols }

// Globals returns the State's global variable table.
func (s *State) Globals() *GlobalTable { return s.globals }

// Stats is a snapshot of a State's bookkeeping.
type Stats struct {
	LiveCodeUnits int
	ShutdownHooks int
	Symbols       int
	Globals       int
	HeapObjects   int
	GCDisabled    bool
}

// Stats returns the State's current counts.
func (s *State) Stats() Stats {
	st := Stats{
		LiveCodeUnits: s.liveUnits,
		ShutdownHooks: s.HookCount(),
		Symbols:       s.symbols.Len(),
		Globals:       s.globals.Len(),
		GCDisabled:    s.gc.Disabled(),
	}
	if h, ok := s.gc.(interface{ Stats() GCStats }); ok {
		st.HeapObjects = h.Stats().Live
	}
	return st
}

// EachCodeRoot visits the code unit of every live proc in the heap.
func (s *State) EachCodeRoot(fn func(*CodeUnit)) {
	h, ok := s.gc.(interface{ Each(func(*Object)) })
	if !ok {
		return
	}
	h.Each(func(o *Object) {
		if o.unit != nil {
			fn(o.unit)
		}
	})
}
