package vm

// GlobalTable maps symbol ids to global variable values. Its entry slots are
// admitted by the allocator in doubling steps.
type GlobalTable struct {
	vars  map[uint32]Value
	slots buffer[uint32]
}

// NewGlobalTable creates an empty table.
func NewGlobalTable() *GlobalTable {
	return &GlobalTable{vars: make(map[uint32]Value)}
}

// Set assigns a global. Adding a new name may need to grow the table.
func (g *GlobalTable) Set(s *State, sym uint32, v Value) error {
	if _, ok := g.vars[sym]; !ok {
		n := len(g.vars)
		if n == g.slots.len() {
			if err := g.slots.resize(s, max(8, n*2)); err != nil {
				return err
			}
		}
		g.slots.items[n] = sym
	}
	g.vars[sym] = v
	return nil
}

// Get returns a global and whether it was set.
func (g *GlobalTable) Get(sym uint32) (Value, bool) {
	v, ok := g.vars[sym]
	return v, ok
}

// Len returns the number of globals.
func (g *GlobalTable) Len() int {
	return len(g.vars)
}

func (g *GlobalTable) each(fn func(uint32, Value)) {
	for k, v := range g.vars {
		fn(k, v)
	}
}

func (g *GlobalTable) free(s *State) {
	g.slots.release(s)
	g.vars = nil
}

// SetGlobal assigns the global variable named name.
func (s *State) SetGlobal(name string, v Value) error {
	sym, err := s.Intern(name)
	if err != nil {
		return err
	}
	return s.globals.Set(s, sym, v)
}

// Global returns the global variable named name, or Nil.
func (s *State) Global(name string) Value {
	sym, ok := s.symbols.Lookup(name)
	if !ok {
		return Nil
	}
	v, _ := s.globals.Get(sym)
	return v
}
