// corestate CLI - opens an interpreter state, builds a sample code graph,
// and tears it down again, reporting what the lifecycle core did.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/corestate/config"
	"github.com/chazu/corestate/inspect"
	"github.com/chazu/corestate/metrics"
	"github.com/chazu/corestate/vm"
)

// maxUnits is the most method children a sample body can address with its
// one-byte LAMBDA operand.
const maxUnits = 256

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("corestate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Int("v", 0, "Log verbosity (0-2)")
	configDir := fs.String("config", ".", "Directory to search upward for corestate.toml")
	units := fs.Int("units", 4, "Number of method units in the sample graph")
	hooks := fs.Int("hooks", 2, "Number of shutdown hooks to register")
	dumpPath := fs.String("dump", "", "Write a CBOR snapshot of the code graph to this file")
	showMetrics := fs.Bool("metrics", false, "Print state metrics before closing")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: corestate [options]\n\n")
		fmt.Fprintf(stderr, "Opens an interpreter state, builds a sample code graph, and closes it.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  corestate -units 10 -hooks 3      # Larger graph, three hooks\n")
		fmt.Fprintf(stderr, "  corestate -dump graph.cbor        # Save a snapshot of the graph\n")
		fmt.Fprintf(stderr, "  corestate -config ./app -metrics  # Use ./app/corestate.toml, print metrics\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *units < 0 || *units > maxUnits {
		fmt.Fprintf(stderr, "Error: -units must be between 0 and %d, got %d\n\n", maxUnits, *units)
		fs.Usage()
		return 2
	}
	if *hooks < 0 {
		fmt.Fprintf(stderr, "Error: -hooks must not be negative, got %d\n\n", *hooks)
		fs.Usage()
		return 2
	}
	commonlog.Configure(*verbose, nil)

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Memory.Track = true

	alloc, tracker := cfg.Allocator()
	s, err := vm.Open(alloc, nil, cfg.Options()...)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening state: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "opened state %s\n", s.ID())

	for i := 0; i < *hooks; i++ {
		if err := s.RegisterShutdownHook(func(*vm.State) {
			fmt.Fprintf(stdout, "shutdown hook %d\n", i)
		}); err != nil {
			fmt.Fprintf(stderr, "Error registering hook %d: %v\n", i, err)
			break
		}
	}

	sample, err := buildSample(s, *units)
	if err != nil {
		fmt.Fprintf(stderr, "Error building sample graph: %v\n", err)
		s.Close()
		return 1
	}

	st := s.Stats()
	fmt.Fprintf(stdout, "code units: %d, heap objects: %d, symbols: %d, hooks: %d\n",
		st.LiveCodeUnits, st.HeapObjects, st.Symbols, st.ShutdownHooks)

	if *dumpPath != "" {
		if err := dump(s, sample, *dumpPath); err != nil {
			fmt.Fprintf(stderr, "Error writing snapshot: %v\n", err)
		} else {
			fmt.Fprintf(stdout, "wrote snapshot to %s\n", *dumpPath)
		}
	}
	if *showMetrics {
		if err := printMetrics(stdout, metrics.NewCollector(s, tracker)); err != nil {
			fmt.Fprintf(stderr, "Error gathering metrics: %v\n", err)
		}
	}

	s.Release(sample)
	s.Close()

	as := tracker.Stats()
	fmt.Fprintf(stdout, "closed: %d allocs, %d frees, %d live blocks\n", as.Allocs, as.Frees, as.LiveBlocks)
	if as.LiveBlocks != 0 || as.DoubleFrees != 0 {
		fmt.Fprintf(stderr, "leak check failed: %d live blocks, %d double frees\n", as.LiveBlocks, as.DoubleFrees)
		return 1
	}
	return 0
}

// buildSample compiles a class body with n method children that all share one
// helper unit, wraps it in a proc bound to $sample, and returns the body with
// the caller holding one reference.
func buildSample(s *vm.State, n int) (body *vm.CodeUnit, err error) {
	body, err = s.CreateCodeUnit()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.Release(body)
			body = nil
		}
	}()

	helper, err := s.CreateCodeUnit()
	if err != nil {
		return nil, err
	}
	defer s.Release(helper)
	if err = helper.SetInstructions(s, []byte{vm.OpLoadNil, vm.OpReturn}); err != nil {
		return nil, err
	}

	code := make([]byte, 0, 2*n+1)
	for i := 0; i < n; i++ {
		method, err := s.CreateCodeUnit()
		if err != nil {
			return nil, err
		}
		_, err = method.AddChild(s, helper)
		if err == nil {
			_, err = method.AddLiteral(s, vm.FromFixnum(int64(i)))
		}
		if err == nil {
			err = method.SetInstructions(s, []byte{vm.OpLoadLit, 0, vm.OpLambda, 0, vm.OpReturn})
		}
		var idx int
		if err == nil {
			idx, err = body.AddChild(s, method)
		}
		s.Release(method)
		if err != nil {
			return nil, err
		}
		code = append(code, vm.OpLambda, byte(idx))
	}
	if err = body.SetInstructions(s, append(code, vm.OpReturn)); err != nil {
		return nil, err
	}

	mark := s.ArenaSave()
	defer s.ArenaRestore(mark)
	proc, err := s.NewProc(body)
	if err != nil {
		return nil, err
	}
	if err = s.SetGlobal("$sample", vm.FromObject(proc)); err != nil {
		return nil, err
	}
	return body, nil
}

func dump(s *vm.State, extra *vm.CodeUnit, path string) error {
	data, err := inspect.Marshal(inspect.Capture(s, extra))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func printMetrics(w io.Writer, c prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
