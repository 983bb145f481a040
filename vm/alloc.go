package vm

import (
	"fmt"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Allocator abstraction
// ---------------------------------------------------------------------------

// AllocFunc is the pluggable allocator every State routes memory through.
//
// A size of 0 releases block and always returns nil. A non-zero size
// allocates a fresh block when block is nil, or resizes block (in place or by
// copy) otherwise. An allocator signals exhaustion by returning nil; it never
// panics. The State is nil for the very first request made by Open, since the
// State itself is what is being allocated.
type AllocFunc func(s *State, block []byte, size int, ud any) []byte

// MaxAllocSize is the largest single request DefaultAlloc will satisfy.
// Larger or negative requests are refused.
const MaxAllocSize = 1<<31 - 1

// DefaultAlloc is the allocator used when Open is given nil. It is a thin
// wrapper over the Go heap.
func DefaultAlloc(_ *State, block []byte, size int, _ any) []byte {
	if size == 0 {
		return nil
	}
	if size < 0 || size > MaxAllocSize {
		return nil
	}
	if block != nil && size <= cap(block) {
		return block[:size]
	}
	grown := makeBlock(size)
	if grown != nil {
		copy(grown, block)
	}
	return grown
}

// makeBlock allocates size bytes, returning nil if the runtime refuses.
func makeBlock(size int) (p []byte) {
	defer func() {
		if recover() != nil {
			p = nil
		}
	}()
	return make([]byte, size)
}

// Approximate footprints of the aggregates the core allocates for itself.
const (
	stateSize   = int(unsafe.Sizeof(State{}))
	contextSize = int(unsafe.Sizeof(Context{}))
	unitSize    = int(unsafe.Sizeof(CodeUnit{}))
	debugSize   = int(unsafe.Sizeof(DebugInfo{}))
	objectSize  = int(unsafe.Sizeof(Object{}))
)

func (s *State) malloc(size int) ([]byte, error) {
	return s.realloc(nil, size)
}

// realloc resizes block. On failure block is left untouched and still owned
// by the caller.
func (s *State) realloc(block []byte, size int) ([]byte, error) {
	p := s.allocf(s, block, size, s.ud)
	if p == nil {
		log.Errorf("allocator refused %d bytes", size)
		return nil, fmt.Errorf("%w: %d bytes", ErrAllocationFailure, size)
	}
	return p, nil
}

func (s *State) free(block []byte) {
	if block == nil {
		return
	}
	s.allocf(s, block, 0, s.ud)
}

// ---------------------------------------------------------------------------
// buffer: a typed slice whose footprint is admitted by the allocator
// ---------------------------------------------------------------------------

// buffer pairs a typed slice with the allocator block that accounts for it.
// The zero value is an empty buffer that owns nothing.
type buffer[T any] struct {
	items []T
	block []byte
}

func elemSize[T any]() int {
	var zero T
	if n := int(unsafe.Sizeof(zero)); n > 0 {
		return n
	}
	return 1
}

// resize grows or shrinks the buffer to exactly n elements. Existing elements
// are preserved up to n. On failure the buffer is unchanged.
func (b *buffer[T]) resize(s *State, n int) error {
	if n == 0 {
		b.release(s)
		return nil
	}
	size := elemSize[T]()
	if n < 0 || n > MaxAllocSize/size {
		log.Errorf("refused buffer of %d elements", n)
		return fmt.Errorf("%w: %d elements of %d bytes", ErrAllocationFailure, n, size)
	}
	block, err := s.realloc(b.block, n*size)
	if err != nil {
		return err
	}
	items := make([]T, n)
	copy(items, b.items)
	b.block = block
	b.items = items
	return nil
}

// push appends v, growing the backing block by one slot.
func (b *buffer[T]) push(s *State, v T) (int, error) {
	n := len(b.items)
	if err := b.resize(s, n+1); err != nil {
		return -1, err
	}
	b.items[n] = v
	return n, nil
}

func (b *buffer[T]) release(s *State) {
	s.free(b.block)
	b.block = nil
	b.items = nil
}

func (b *buffer[T]) len() int {
	return len(b.items)
}
