// Package config handles corestate.toml interpreter configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/chazu/corestate/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "corestate.toml"

var log = commonlog.GetLogger("corestate.config")

// Config represents a corestate.toml file.
type Config struct {
	State  StateConfig  `toml:"state"`
	GC     GCConfig     `toml:"gc"`
	Memory MemoryConfig `toml:"memory"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// StateConfig configures State construction.
type StateConfig struct {
	HookStrategy string `toml:"hook-strategy"`
	HookCapacity int    `toml:"hook-capacity"`
	Bootstrap    *bool  `toml:"bootstrap"`
}

// GCConfig configures the default heap.
type GCConfig struct {
	Threshold int `toml:"threshold"`
}

// MemoryConfig configures the allocator handed to Open.
type MemoryConfig struct {
	// MaxAllocations caps the number of successful allocator requests.
	// Zero means unlimited.
	MaxAllocations int  `toml:"max-allocations"`
	Track          bool `toml:"track"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses corestate.toml from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	log.Debugf("loaded %s", path)
	return c, nil
}

// Parse decodes and validates configuration text.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find corestate.toml, then loads it.
// Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.State.HookStrategy == "" {
		c.State.HookStrategy = vm.HookDynamic.String()
	}
	if c.State.HookCapacity == 0 {
		c.State.HookCapacity = vm.DefaultHookCapacity
	}
	if c.State.Bootstrap == nil {
		on := true
		c.State.Bootstrap = &on
	}
	if c.GC.Threshold == 0 {
		c.GC.Threshold = vm.DefaultGCThreshold
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if _, err := c.hookStrategy(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.State.HookCapacity < 0 {
		result = multierror.Append(result, fmt.Errorf("state.hook-capacity must not be negative, got %d", c.State.HookCapacity))
	}
	if c.GC.Threshold < 0 {
		result = multierror.Append(result, fmt.Errorf("gc.threshold must not be negative, got %d", c.GC.Threshold))
	}
	if c.Memory.MaxAllocations < 0 {
		result = multierror.Append(result, fmt.Errorf("memory.max-allocations must not be negative, got %d", c.Memory.MaxAllocations))
	}
	return result.ErrorOrNil()
}

func (c *Config) hookStrategy() (vm.HookStrategy, error) {
	switch c.State.HookStrategy {
	case vm.HookDynamic.String():
		return vm.HookDynamic, nil
	case vm.HookFixed.String():
		return vm.HookFixed, nil
	default:
		return 0, fmt.Errorf("state.hook-strategy must be %q or %q, got %q",
			vm.HookDynamic, vm.HookFixed, c.State.HookStrategy)
	}
}

// Options translates the configuration into State options.
func (c *Config) Options() []vm.Option {
	opts := []vm.Option{vm.WithGCThreshold(c.GC.Threshold)}
	if strategy, _ := c.hookStrategy(); strategy == vm.HookFixed {
		opts = append(opts, vm.WithHookCapacity(c.State.HookCapacity))
	} else {
		opts = append(opts, vm.WithHookStrategy(vm.HookDynamic))
	}
	if c.State.Bootstrap != nil && !*c.State.Bootstrap {
		opts = append(opts, vm.WithBootstrap(nil))
	}
	return opts
}

// Allocator builds the allocator described by the memory section. The
// tracker is nil unless tracking is enabled.
func (c *Config) Allocator() (vm.AllocFunc, *vm.TrackingAllocator) {
	alloc := vm.AllocFunc(vm.DefaultAlloc)
	if c.Memory.MaxAllocations > 0 {
		alloc = vm.NewLimitAllocator(c.Memory.MaxAllocations, alloc)
	}
	if !c.Memory.Track {
		return alloc, nil
	}
	tr := vm.NewTrackingAllocator(alloc)
	return tr.Alloc, tr
}
