package vm

// DebugInfo maps instruction offsets of a code unit back to source lines.
// It is owned by exactly one code unit and released with it.
type DebugInfo struct {
	self     []byte
	filename []byte
	lines    buffer[uint16]
}

// NewDebugInfo allocates debug metadata for a unit compiled from filename.
// lines holds one source line per instruction.
func (s *State) NewDebugInfo(filename string, lines []uint16) (*DebugInfo, error) {
	self, err := s.malloc(debugSize)
	if err != nil {
		return nil, err
	}
	d := &DebugInfo{self: self}
	if filename != "" {
		if d.filename, err = s.malloc(len(filename)); err != nil {
			s.FreeDebugInfo(d)
			return nil, err
		}
		copy(d.filename, filename)
	}
	if len(lines) > 0 {
		if err := d.lines.resize(s, len(lines)); err != nil {
			s.FreeDebugInfo(d)
			return nil, err
		}
		copy(d.lines.items, lines)
	}
	return d, nil
}

// Filename returns the source file the unit was compiled from.
func (d *DebugInfo) Filename() string {
	return string(d.filename)
}

// LineAt returns the source line for the instruction at pc, or 0.
func (d *DebugInfo) LineAt(pc int) int {
	if pc < 0 || pc >= d.lines.len() {
		return 0
	}
	return int(d.lines.items[pc])
}

// FreeDebugInfo releases d. It is a no-op on nil.
func (s *State) FreeDebugInfo(d *DebugInfo) {
	if d == nil {
		return
	}
	s.free(d.filename)
	d.lines.release(s)
	s.free(d.self)
	d.filename, d.self = nil, nil
}
