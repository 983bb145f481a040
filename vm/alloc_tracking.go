package vm

import "unsafe"

// ---------------------------------------------------------------------------
// TrackingAllocator: accounting wrapper around another AllocFunc
// ---------------------------------------------------------------------------

// AllocStats is a point-in-time view of a TrackingAllocator.
type AllocStats struct {
	Allocs      int // fresh blocks handed out
	Resizes     int // successful resizes of an existing block
	Frees       int // blocks released
	Failures    int // non-zero requests the inner allocator refused
	DoubleFrees int // releases of a block that was not live
	LiveBlocks  int
	LiveBytes   int
	PeakBytes   int
}

// TrackingAllocator counts every request routed through it and remembers
// which blocks are live, so teardown can be checked for leaks and double
// frees. It is not safe for concurrent use.
type TrackingAllocator struct {
	inner AllocFunc
	live  map[*byte]int
	stats AllocStats
}

// NewTrackingAllocator wraps inner. A nil inner means DefaultAlloc.
func NewTrackingAllocator(inner AllocFunc) *TrackingAllocator {
	if inner == nil {
		inner = DefaultAlloc
	}
	return &TrackingAllocator{
		inner: inner,
		live:  make(map[*byte]int),
	}
}

// Alloc implements AllocFunc; pass t.Alloc to Open.
func (t *TrackingAllocator) Alloc(s *State, block []byte, size int, ud any) []byte {
	if size == 0 {
		if block == nil {
			return nil
		}
		key := unsafe.SliceData(block)
		n, ok := t.live[key]
		if !ok {
			t.stats.DoubleFrees++
			return nil
		}
		delete(t.live, key)
		t.stats.LiveBlocks--
		t.stats.LiveBytes -= n
		t.stats.Frees++
		return t.inner(s, block, 0, ud)
	}

	p := t.inner(s, block, size, ud)
	if p == nil {
		t.stats.Failures++
		return nil
	}
	if block != nil {
		old := unsafe.SliceData(block)
		if n, ok := t.live[old]; ok {
			delete(t.live, old)
			t.stats.LiveBlocks--
			t.stats.LiveBytes -= n
		}
		t.stats.Resizes++
	} else {
		t.stats.Allocs++
	}
	t.live[unsafe.SliceData(p)] = size
	t.stats.LiveBlocks++
	t.stats.LiveBytes += size
	if t.stats.LiveBytes > t.stats.PeakBytes {
		t.stats.PeakBytes = t.stats.LiveBytes
	}
	return p
}

// Stats returns the current counters.
func (t *TrackingAllocator) Stats() AllocStats {
	return t.stats
}

// Live returns the number of blocks handed out and not yet released.
func (t *TrackingAllocator) Live() int {
	return t.stats.LiveBlocks
}

// ---------------------------------------------------------------------------
// Failure injection
// ---------------------------------------------------------------------------

// FailingAlloc refuses every non-zero request.
func FailingAlloc(_ *State, _ []byte, _ int, _ any) []byte {
	return nil
}

// NewLimitAllocator returns an allocator that satisfies the first n non-zero
// requests through inner and refuses every one after that. Releases are
// always forwarded. A nil inner means DefaultAlloc.
func NewLimitAllocator(n int, inner AllocFunc) AllocFunc {
	if inner == nil {
		inner = DefaultAlloc
	}
	remaining := n
	return func(s *State, block []byte, size int, ud any) []byte {
		if size == 0 {
			return inner(s, block, 0, ud)
		}
		if remaining <= 0 {
			return nil
		}
		remaining--
		return inner(s, block, size, ud)
	}
}
