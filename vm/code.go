package vm

import (
	"fmt"
	"unsafe"
)

// ---------------------------------------------------------------------------
// CodeUnit: reference-counted compiled code
// ---------------------------------------------------------------------------

// CodeFlags modify how a code unit treats its buffers.
type CodeFlags uint8

const (
	// CodeNoFreeInstructions marks the instruction sequence as owned by
	// someone else (e.g. bytecode embedded in the host binary).
	CodeNoFreeInstructions CodeFlags = 1 << iota
)

// LocalVar describes one local variable slot of a code unit.
type LocalVar struct {
	Name uint32 // symbol id
	Reg  uint16
}

// literal is one entry of a literal pool. Strings and floats are boxed: the
// box block is allocated separately and released with the unit.
type literal struct {
	v   Value
	box []byte
}

var boxHeader = int(unsafe.Sizeof(Value{}))

// CodeUnit is a node in the shared compiled-code graph. Children are counted
// edges: a unit may be linked under several parents, and it is freed when the
// last reference is released. A CodeUnit is created with CreateCodeUnit and
// must only be manipulated through the State that created it.
type CodeUnit struct {
	self   []byte
	id     uint64
	refcnt int
	flags  CodeFlags

	iseq  []byte
	pool  buffer[literal]
	syms  buffer[uint32]
	lv    buffer[LocalVar]
	reps  buffer[*CodeUnit]
	debug *DebugInfo

	// Register file size requested by the compiler.
	NumRegs int
}

// CreateCodeUnit allocates an empty code unit. The caller holds the only
// reference (refcount 1).
func (s *State) CreateCodeUnit() (*CodeUnit, error) {
	self, err := s.malloc(unitSize)
	if err != nil {
		return nil, err
	}
	s.nextUnitID++
	s.liveUnits++
	return &CodeUnit{self: self, id: s.nextUnitID, refcnt: 1}, nil
}

// Retain adds a reference to u.
func (s *State) Retain(u *CodeUnit) {
	u.refcnt++
}

// Release drops a reference to u. When the count reaches zero, every present
// child link is released in turn and then the unit and all buffers it owns
// are freed. The cascade uses an explicit work list, so deep graphs do not
// grow the Go stack. Releasing a unit that was already freed panics.
func (s *State) Release(u *CodeUnit) {
	if !decref(u) {
		return
	}
	pending := []*CodeUnit{u}
	for len(pending) > 0 {
		last := len(pending) - 1
		unit := pending[last]
		pending = pending[:last]
		for _, child := range unit.reps.items {
			if child != nil && decref(child) {
				pending = append(pending, child)
			}
		}
		s.freeCodeUnit(unit)
	}
}

// decref decrements the count and reports whether it reached zero.
func decref(u *CodeUnit) bool {
	if u.refcnt <= 0 {
		panic(fmt.Sprintf("vm: release of freed code unit #%d", u.id))
	}
	u.refcnt--
	return u.refcnt == 0
}

// SeverChildren detaches every present child of u, releasing the link. The
// slots stay in place as absent links; u's own count is untouched.
func (s *State) SeverChildren(u *CodeUnit) {
	for i, child := range u.reps.items {
		if child == nil {
			continue
		}
		u.reps.items[i] = nil
		s.Release(child)
	}
}

func (s *State) freeCodeUnit(u *CodeUnit) {
	if u.flags&CodeNoFreeInstructions == 0 {
		s.free(u.iseq)
	}
	for _, lit := range u.pool.items {
		s.free(lit.box)
	}
	u.pool.release(s)
	u.syms.release(s)
	u.reps.release(s)
	u.lv.release(s)
	s.FreeDebugInfo(u.debug)
	s.free(u.self)

	u.iseq, u.debug, u.self = nil, nil, nil
	s.liveUnits--
}

// ---------------------------------------------------------------------------
// Building a unit
// ---------------------------------------------------------------------------

// SetInstructions copies code into an allocator-owned instruction sequence,
// replacing any previous one.
func (u *CodeUnit) SetInstructions(s *State, code []byte) error {
	var iseq []byte
	if len(code) > 0 {
		var err error
		if iseq, err = s.malloc(len(code)); err != nil {
			return err
		}
		copy(iseq, code)
	}
	if u.flags&CodeNoFreeInstructions == 0 {
		s.free(u.iseq)
	}
	u.iseq = iseq
	u.flags &^= CodeNoFreeInstructions
	return nil
}

// SetExternalInstructions points the unit at code without copying it. The
// sequence is never freed by the unit.
func (u *CodeUnit) SetExternalInstructions(s *State, code []byte) {
	if u.flags&CodeNoFreeInstructions == 0 {
		s.free(u.iseq)
	}
	u.iseq = code
	u.flags |= CodeNoFreeInstructions
}

// AddLiteral appends v to the literal pool and returns its index. Strings
// and floats are boxed on the allocator.
func (u *CodeUnit) AddLiteral(s *State, v Value) (int, error) {
	lit := literal{v: v}
	if v.boxed() {
		box, err := s.malloc(boxHeader + len(v.s))
		if err != nil {
			return -1, err
		}
		copy(box[boxHeader:], v.s)
		lit.box = box
	}
	idx, err := u.pool.push(s, lit)
	if err != nil {
		s.free(lit.box)
		return -1, err
	}
	return idx, nil
}

// AddSymbol appends a symbol reference and returns its index.
func (u *CodeUnit) AddSymbol(s *State, sym uint32) (int, error) {
	return u.syms.push(s, sym)
}

// AddLocal records a local variable slot.
func (u *CodeUnit) AddLocal(s *State, name uint32, reg uint16) error {
	_, err := u.lv.push(s, LocalVar{Name: name, Reg: reg})
	return err
}

// AddChild links child under u and retains it. On failure nothing changes.
func (u *CodeUnit) AddChild(s *State, child *CodeUnit) (int, error) {
	idx, err := u.reps.push(s, child)
	if err != nil {
		return -1, err
	}
	s.Retain(child)
	return idx, nil
}

// SetDebugInfo hands d to the unit, freeing any previous debug info.
func (u *CodeUnit) SetDebugInfo(s *State, d *DebugInfo) {
	if u.debug != nil && u.debug != d {
		s.FreeDebugInfo(u.debug)
	}
	u.debug = d
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// ID returns the unit's identifier, unique within its State.
func (u *CodeUnit) ID() uint64 { return u.id }

// RefCount returns the current reference count.
func (u *CodeUnit) RefCount() int { return u.refcnt }

// Flags returns the unit's flags.
func (u *CodeUnit) Flags() CodeFlags { return u.flags }

// Instructions returns the instruction sequence.
func (u *CodeUnit) Instructions() []byte { return u.iseq }

// LiteralCount returns the size of the literal pool.
func (u *CodeUnit) LiteralCount() int { return u.pool.len() }

// LiteralAt returns the literal at index.
func (u *CodeUnit) LiteralAt(index int) Value { return u.pool.items[index].v }

// SymbolCount returns the number of symbol references.
func (u *CodeUnit) SymbolCount() int { return u.syms.len() }

// SymbolAt returns the symbol reference at index.
func (u *CodeUnit) SymbolAt(index int) uint32 { return u.syms.items[index] }

// LocalCount returns the number of local variable slots.
func (u *CodeUnit) LocalCount() int { return u.lv.len() }

// LocalAt returns the local variable slot at index.
func (u *CodeUnit) LocalAt(index int) LocalVar { return u.lv.items[index] }

// ChildCount returns the number of child slots, absent ones included.
func (u *CodeUnit) ChildCount() int { return u.reps.len() }

// ChildAt returns the child at index, or nil if the link was severed.
func (u *CodeUnit) ChildAt(index int) *CodeUnit { return u.reps.items[index] }

// DebugInfo returns the unit's debug metadata, if any.
func (u *CodeUnit) DebugInfo() *DebugInfo { return u.debug }
