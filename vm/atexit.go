package vm

import "fmt"

// ---------------------------------------------------------------------------
// Shutdown hooks
// ---------------------------------------------------------------------------

// AtExitFunc is a shutdown hook. Hooks run once, during Close, most recently
// registered first.
type AtExitFunc func(s *State)

// HookStrategy selects how the shutdown hook registry stores its entries.
type HookStrategy int

const (
	// HookDynamic grows the registry by one allocator slot per registration.
	HookDynamic HookStrategy = iota
	// HookFixed stores hooks in an array of fixed capacity.
	HookFixed
)

// DefaultHookCapacity is the fixed registry limit used when none is given.
const DefaultHookCapacity = 5

func (h HookStrategy) String() string {
	switch h {
	case HookDynamic:
		return "dynamic"
	case HookFixed:
		return "fixed"
	default:
		return fmt.Sprintf("HookStrategy(%d)", int(h))
	}
}

type hookRegistry struct {
	strategy HookStrategy
	dynamic  buffer[AtExitFunc]
	fixed    []AtExitFunc
	running  bool
}

func newHookRegistry(strategy HookStrategy, capacity int) hookRegistry {
	r := hookRegistry{strategy: strategy}
	if strategy == HookFixed {
		r.fixed = make([]AtExitFunc, 0, capacity)
	}
	return r
}

func (r *hookRegistry) entries() []AtExitFunc {
	if r.strategy == HookFixed {
		return r.fixed
	}
	return r.dynamic.items
}

// RegisterShutdownHook appends f to the shutdown hook registry. A fixed
// registry at its limit returns ErrCapacityExceeded; a dynamic registry that
// cannot grow returns ErrAllocationFailure. In both cases the entries already
// registered are left intact and f is not recorded.
func (s *State) RegisterShutdownHook(f AtExitFunc) error {
	r := &s.hooks
	if r.running {
		return ErrStateClosing
	}
	if r.strategy == HookFixed {
		if len(r.fixed) == cap(r.fixed) {
			log.Warningf("shutdown hook limit %d reached", cap(r.fixed))
			return fmt.Errorf("%w (%d)", ErrCapacityExceeded, cap(r.fixed))
		}
		r.fixed = append(r.fixed, f)
		return nil
	}
	if _, err := r.dynamic.push(s, f); err != nil {
		return err
	}
	return nil
}

// HookCount returns the number of registered shutdown hooks.
func (s *State) HookCount() int {
	return len(s.hooks.entries())
}

// runShutdownHooks invokes every hook in reverse registration order and then
// discards the registry.
func (s *State) runShutdownHooks() {
	r := &s.hooks
	hooks := r.entries()
	if len(hooks) == 0 {
		return
	}
	log.Debugf("running %d shutdown hooks", len(hooks))
	r.running = true
	for i := len(hooks); i > 0; i-- {
		hooks[i-1](s)
	}
	r.running = false
	if r.strategy == HookFixed {
		r.fixed = r.fixed[:0]
		return
	}
	r.dynamic.release(s)
}
