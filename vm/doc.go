// Package vm implements the lifecycle core of the corestate interpreter.
//
// This package contains:
//   - The pluggable allocator and its accounting wrappers
//   - Reference-counted code units and their cascading release
//   - The execution context (value stack, call frames, handler stacks)
//   - The shutdown hook registry
//   - State construction and teardown
//
// A State is single-threaded: every operation on it, including the allocator
// callback it was opened with, runs on the goroutine that owns it.
package vm
