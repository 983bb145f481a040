package vm

import "fmt"

// ---------------------------------------------------------------------------
// Bootstrap: populate built-in behavior
// ---------------------------------------------------------------------------

// Bootstrapper populates a freshly opened State. It runs with the collector
// disabled, so objects it creates are not reclaimed before they are wired
// into globals.
type Bootstrapper func(s *State) error

// kernelMethods are the built-in Kernel methods compiled at bootstrap, each
// forwarding its single argument to the named primitive.
var kernelMethods = []struct {
	name      string
	primitive string
}{
	{"puts", "__puts"},
	{"p", "__inspect"},
	{"raise", "__raise"},
}

// InitCore is the default Bootstrapper. It interns the core symbols, creates
// the top-level self object, compiles the Kernel method bodies and publishes
// them through the $kernel global.
func InitCore(s *State) error {
	// Phase 1: core symbols
	objectSym, err := s.Intern("Object")
	if err != nil {
		return err
	}
	for _, name := range []string{"Kernel", "Proc", "main", "self"} {
		if _, err := s.Intern(name); err != nil {
			return err
		}
	}

	// Phase 2: top-level self
	top, err := s.NewObject(objectSym)
	if err != nil {
		return err
	}
	s.topSelf = top

	// Phase 3: Kernel method bodies
	kernel, err := compileKernel(s)
	if err != nil {
		return err
	}
	proc, err := s.NewProc(kernel)
	s.Release(kernel)
	if err != nil {
		return err
	}

	// Phase 4: globals
	if err := s.SetGlobal("$kernel", FromObject(proc)); err != nil {
		return err
	}
	if err := s.SetGlobal("$0", FromString("corestate")); err != nil {
		return err
	}
	return nil
}

// compileKernel builds the Kernel unit: one child per method, and a body that
// instantiates each child as a lambda.
func compileKernel(s *State) (*CodeUnit, error) {
	kernel, err := s.CreateCodeUnit()
	if err != nil {
		return nil, err
	}
	body := make([]byte, 0, 2*len(kernelMethods)+1)
	for _, m := range kernelMethods {
		child, err := compileForwarder(s, m.name, m.primitive)
		if err != nil {
			s.Release(kernel)
			return nil, fmt.Errorf("compile %s: %w", m.name, err)
		}
		idx, err := kernel.AddChild(s, child)
		s.Release(child)
		if err != nil {
			s.Release(kernel)
			return nil, err
		}
		body = append(body, OpLambda, byte(idx))
	}
	body = append(body, OpReturn)
	if err := kernel.SetInstructions(s, body); err != nil {
		s.Release(kernel)
		return nil, err
	}
	return kernel, nil
}

// compileForwarder builds `def name(arg) = self.primitive(arg)`.
func compileForwarder(s *State, name, primitive string) (u *CodeUnit, err error) {
	u, err = s.CreateCodeUnit()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.Release(u)
			u = nil
		}
	}()

	argSym, err := s.Intern("arg")
	if err != nil {
		return nil, err
	}
	primSym, err := s.Intern(primitive)
	if err != nil {
		return nil, err
	}
	if err = u.AddLocal(s, argSym, 1); err != nil {
		return nil, err
	}
	idx, err := u.AddSymbol(s, primSym)
	if err != nil {
		return nil, err
	}
	if _, err = u.AddLiteral(s, FromString(name)); err != nil {
		return nil, err
	}
	code := []byte{OpLoadSelf, OpGetLocal, 1, OpSend, byte(idx), 1, OpReturn}
	if err = u.SetInstructions(s, code); err != nil {
		return nil, err
	}
	lines := make([]uint16, len(code))
	for i := range lines {
		lines[i] = 1
	}
	d, err := s.NewDebugInfo("(kernel)", lines)
	if err != nil {
		return nil, err
	}
	u.SetDebugInfo(s, d)
	u.NumRegs = 2
	return u, nil
}
