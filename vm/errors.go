package vm

import "errors"

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrAllocationFailure is returned when the State's allocator cannot
	// satisfy a non-zero request.
	ErrAllocationFailure = errors.New("vm: allocation failure")

	// ErrCapacityExceeded is returned by RegisterShutdownHook when a
	// fixed-capacity hook registry is full.
	ErrCapacityExceeded = errors.New("vm: exceeded fixed state shutdown hook limit")

	// ErrStateClosing is returned when a shutdown hook tries to register
	// another hook while the registry is being run.
	ErrStateClosing = errors.New("vm: state is closing")

	// ErrBootstrap wraps any failure reported by the core bootstrap routine.
	ErrBootstrap = errors.New("vm: core bootstrap failed")

	// ErrInvalidOption is returned by Open when an option value is out of
	// range.
	ErrInvalidOption = errors.New("vm: invalid option")

	// ErrNoObjectSpace is returned when the configured collector cannot
	// allocate heap objects.
	ErrNoObjectSpace = errors.New("vm: collector does not provide an object space")
)
