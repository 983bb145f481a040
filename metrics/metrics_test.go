package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chazu/corestate/vm"
)

func gather(t *testing.T, c prometheus.Collector) map[string][]float64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string][]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			}
			out[mf.GetName()] = append(out[mf.GetName()], v)
		}
	}
	return out
}

func TestCollectorWithTracker(t *testing.T) {
	tr := vm.NewTrackingAllocator(nil)
	s, err := vm.Open(tr.Alloc, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.RegisterShutdownHook(func(*vm.State) {})

	got := gather(t, NewCollector(s, tr))

	if v := got["corestate_code_live_units"]; len(v) != 1 || v[0] != 4 {
		t.Errorf("live_units = %v, want [4]", v)
	}
	if v := got["corestate_state_shutdown_hooks"]; len(v) != 1 || v[0] != 1 {
		t.Errorf("shutdown_hooks = %v, want [1]", v)
	}
	if v := got["corestate_gc_disabled"]; len(v) != 1 || v[0] != 0 {
		t.Errorf("gc_disabled = %v, want [0]", v)
	}
	if v := got["corestate_alloc_live_blocks"]; len(v) != 1 || v[0] != float64(tr.Live()) {
		t.Errorf("live_blocks = %v, want [%d]", v, tr.Live())
	}
	if v := got["corestate_alloc_requests_total"]; len(v) != 5 {
		t.Errorf("requests_total series = %d, want 5", len(v))
	}
}

func TestCollectorWithoutTracker(t *testing.T) {
	s, err := vm.OpenDefault()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got := gather(t, NewCollector(s, nil))
	if _, ok := got["corestate_alloc_live_blocks"]; ok {
		t.Error("allocator metrics should be omitted without a tracker")
	}
	if v := got["corestate_gc_heap_objects"]; len(v) != 1 || v[0] != 2 {
		t.Errorf("heap_objects = %v, want [2]", v)
	}
}
