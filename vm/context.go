package vm

// ---------------------------------------------------------------------------
// Context: one logical thread of execution
// ---------------------------------------------------------------------------

// CallInfo is one activation record on a context's call-info stack.
type CallInfo struct {
	Unit      *CodeUnit
	PC        int
	StackBase int
	Argc      int
}

// Context owns a value stack, a call-info stack, and the rescue and ensure
// marker stacks used while unwinding. Every buffer starts absent and is grown
// by the execution engine.
type Context struct {
	self   []byte
	stack  buffer[Value]
	ci     buffer[CallInfo]
	rescue buffer[int]
	ensure buffer[*Object]
}

// createRootContext allocates an empty context.
func (s *State) createRootContext() (*Context, error) {
	self, err := s.malloc(contextSize)
	if err != nil {
		return nil, err
	}
	return &Context{self: self}, nil
}

// FreeContext releases every buffer owned by c and then c itself. It is a
// no-op on nil.
func (s *State) FreeContext(c *Context) {
	if c == nil {
		return
	}
	c.stack.release(s)
	c.ci.release(s)
	c.rescue.release(s)
	c.ensure.release(s)
	s.free(c.self)
	c.self = nil
}

// GrowStack resizes the value stack to hold at least n values. New slots are
// nil.
func (c *Context) GrowStack(s *State, n int) error {
	if n <= c.stack.len() {
		return nil
	}
	return c.stack.resize(s, n)
}

// GrowCallInfo resizes the call-info stack to hold at least n records.
func (c *Context) GrowCallInfo(s *State, n int) error {
	if n <= c.ci.len() {
		return nil
	}
	return c.ci.resize(s, n)
}

// PushRescue records the handler offset of an entered rescue clause.
func (c *Context) PushRescue(s *State, pc int) error {
	_, err := c.rescue.push(s, pc)
	return err
}

// PushEnsure records a pending ensure proc.
func (c *Context) PushEnsure(s *State, proc *Object) error {
	_, err := c.ensure.push(s, proc)
	return err
}

// StackSize returns the number of value stack slots.
func (c *Context) StackSize() int { return c.stack.len() }

// Stack returns the value stack. The slice aliases the context's storage.
func (c *Context) Stack() []Value { return c.stack.items }

// CallInfoSize returns the number of call-info slots.
func (c *Context) CallInfoSize() int { return c.ci.len() }

// CallInfos returns the call-info stack. The slice aliases the context's
// storage.
func (c *Context) CallInfos() []CallInfo { return c.ci.items }

// RescueDepth returns the number of recorded rescue markers.
func (c *Context) RescueDepth() int { return c.rescue.len() }

// EnsureDepth returns the number of pending ensure procs.
func (c *Context) EnsureDepth() int { return c.ensure.len() }

// Ensures returns the pending ensure procs.
func (c *Context) Ensures() []*Object { return c.ensure.items }
