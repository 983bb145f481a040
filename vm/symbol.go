package vm

// ---------------------------------------------------------------------------
// SymbolTable: Interned symbols
// ---------------------------------------------------------------------------

// SymbolTable interns symbol strings to unique IDs. Each name is copied into
// an allocator block owned by the table; the table is released as a whole
// when the State closes.
type SymbolTable struct {
	byName map[string]uint32 // name -> ID
	byID   []symbolEntry     // ID -> name
}

type symbolEntry struct {
	name  string
	block []byte
}

// NewSymbolTable creates a new empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: make(map[string]uint32),
		byID:   make([]symbolEntry, 0, 256),
	}
}

// Intern returns the ID for a symbol, creating a new one if needed.
func (st *SymbolTable) Intern(s *State, name string) (uint32, error) {
	if id, ok := st.byName[name]; ok {
		return id, nil
	}

	block, err := s.malloc(len(name) + 1)
	if err != nil {
		return 0, err
	}
	copy(block, name)

	id := uint32(len(st.byID))
	st.byName[name] = id
	st.byID = append(st.byID, symbolEntry{name: name, block: block})
	return id, nil
}

// Lookup returns the ID for a symbol, or 0 and false if not found.
func (st *SymbolTable) Lookup(name string) (uint32, bool) {
	id, ok := st.byName[name]
	return id, ok
}

// Name returns the symbol name for an ID, or "" if invalid.
func (st *SymbolTable) Name(id uint32) string {
	if int(id) >= len(st.byID) {
		return ""
	}
	return st.byID[id].name
}

// Len returns the number of interned symbols.
func (st *SymbolTable) Len() int {
	return len(st.byID)
}

// All returns all symbol names in ID order.
func (st *SymbolTable) All() []string {
	result := make([]string, len(st.byID))
	for i, e := range st.byID {
		result[i] = e.name
	}
	return result
}

// free releases every interned name.
func (st *SymbolTable) free(s *State) {
	for _, e := range st.byID {
		s.free(e.block)
	}
	st.byID = nil
	st.byName = nil
}

// Intern interns name in the State's symbol table.
func (s *State) Intern(name string) (uint32, error) {
	return s.symbols.Intern(s, name)
}

// SymbolName returns the name of an interned symbol.
func (s *State) SymbolName(id uint32) string {
	return s.symbols.Name(id)
}
