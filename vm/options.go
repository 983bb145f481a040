package vm

import "fmt"

// Option configures a State at Open time.
type Option func(*options)

type options struct {
	hookStrategy HookStrategy
	hookCapacity int
	bootstrap    Bootstrapper
	collector    Collector
	gcThreshold  int
}

func defaultOptions() options {
	return options{
		hookStrategy: HookDynamic,
		hookCapacity: DefaultHookCapacity,
		bootstrap:    InitCore,
		gcThreshold:  DefaultGCThreshold,
	}
}

// validate rejects option values Open cannot honor.
func (o *options) validate() error {
	if o.hookStrategy != HookDynamic && o.hookStrategy != HookFixed {
		return fmt.Errorf("%w: hook strategy %s", ErrInvalidOption, o.hookStrategy)
	}
	if o.hookCapacity < 0 {
		return fmt.Errorf("%w: hook capacity %d", ErrInvalidOption, o.hookCapacity)
	}
	return nil
}

// WithHookStrategy selects dynamic or fixed shutdown hook storage.
func WithHookStrategy(strategy HookStrategy) Option {
	return func(o *options) {
		o.hookStrategy = strategy
	}
}

// WithHookCapacity sets the limit of a fixed hook registry. It implies
// HookFixed. A negative limit makes Open fail with ErrInvalidOption.
func WithHookCapacity(n int) Option {
	return func(o *options) {
		o.hookStrategy = HookFixed
		o.hookCapacity = n
	}
}

// WithBootstrap replaces the core-library bootstrap routine. Passing nil
// skips bootstrap entirely.
func WithBootstrap(fn Bootstrapper) Option {
	return func(o *options) {
		o.bootstrap = fn
	}
}

// WithCollector supplies the garbage collector. The default is a Heap.
func WithCollector(c Collector) Option {
	return func(o *options) {
		o.collector = c
	}
}

// WithGCThreshold sets the live-object threshold of the default Heap.
func WithGCThreshold(n int) Option {
	return func(o *options) {
		o.gcThreshold = n
	}
}
