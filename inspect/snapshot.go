// Package inspect captures a read-only view of a State's code graph and
// bookkeeping for tooling. Snapshots are diagnostic: they are never loaded
// back into a State.
package inspect

import (
	"sort"

	"github.com/chazu/corestate/vm"
)

// Snapshot describes a State at one point in time.
type Snapshot struct {
	StateID string     `cbor:"1,keyasint"`
	Stats   StateStats `cbor:"2,keyasint"`
	Units   []Unit     `cbor:"3,keyasint"`
	Roots   []uint64   `cbor:"4,keyasint"`
}

// StateStats mirrors vm.Stats.
type StateStats struct {
	LiveCodeUnits int  `cbor:"1,keyasint"`
	ShutdownHooks int  `cbor:"2,keyasint"`
	Symbols       int  `cbor:"3,keyasint"`
	Globals       int  `cbor:"4,keyasint"`
	HeapObjects   int  `cbor:"5,keyasint"`
	GCDisabled    bool `cbor:"6,keyasint"`
}

// Unit describes one code unit. Severed child links are recorded as 0.
type Unit struct {
	ID           uint64   `cbor:"1,keyasint"`
	RefCount     int      `cbor:"2,keyasint"`
	Instructions int      `cbor:"3,keyasint"`
	External     bool     `cbor:"4,keyasint"`
	Literals     int      `cbor:"5,keyasint"`
	Symbols      []string `cbor:"6,keyasint"`
	Locals       int      `cbor:"7,keyasint"`
	Children     []uint64 `cbor:"8,keyasint"`
	Filename     string   `cbor:"9,keyasint,omitempty"`
}

// Capture walks every unit reachable from the State's procs and from extra,
// visiting shared units once. Units are ordered by id.
func Capture(s *vm.State, extra ...*vm.CodeUnit) *Snapshot {
	st := s.Stats()
	snap := &Snapshot{
		StateID: s.ID().String(),
		Stats: StateStats{
			LiveCodeUnits: st.LiveCodeUnits,
			ShutdownHooks: st.ShutdownHooks,
			Symbols:       st.Symbols,
			Globals:       st.Globals,
			HeapObjects:   st.HeapObjects,
			GCDisabled:    st.GCDisabled,
		},
	}

	seen := make(map[uint64]bool)
	var pending []*vm.CodeUnit
	addRoot := func(u *vm.CodeUnit) {
		snap.Roots = append(snap.Roots, u.ID())
		pending = append(pending, u)
	}
	s.EachCodeRoot(addRoot)
	for _, u := range extra {
		addRoot(u)
	}

	for len(pending) > 0 {
		last := len(pending) - 1
		u := pending[last]
		pending = pending[:last]
		if seen[u.ID()] {
			continue
		}
		seen[u.ID()] = true
		snap.Units = append(snap.Units, describe(s, u))
		for i := 0; i < u.ChildCount(); i++ {
			if child := u.ChildAt(i); child != nil {
				pending = append(pending, child)
			}
		}
	}

	sort.Slice(snap.Units, func(i, j int) bool {
		return snap.Units[i].ID < snap.Units[j].ID
	})
	return snap
}

func describe(s *vm.State, u *vm.CodeUnit) Unit {
	info := Unit{
		ID:           u.ID(),
		RefCount:     u.RefCount(),
		Instructions: len(u.Instructions()),
		External:     u.Flags()&vm.CodeNoFreeInstructions != 0,
		Literals:     u.LiteralCount(),
		Locals:       u.LocalCount(),
	}
	for i := 0; i < u.SymbolCount(); i++ {
		info.Symbols = append(info.Symbols, s.SymbolName(u.SymbolAt(i)))
	}
	for i := 0; i < u.ChildCount(); i++ {
		var id uint64
		if child := u.ChildAt(i); child != nil {
			id = child.ID()
		}
		info.Children = append(info.Children, id)
	}
	if d := u.DebugInfo(); d != nil {
		info.Filename = d.Filename()
	}
	return info
}

// Unit returns the unit with the given id, or nil.
func (s *Snapshot) Unit(id uint64) *Unit {
	for i := range s.Units {
		if s.Units[i].ID == id {
			return &s.Units[i]
		}
	}
	return nil
}
