// Package metrics exposes State bookkeeping as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chazu/corestate/vm"
)

const namespace = "corestate"

var (
	liveUnitsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "code", "live_units"),
		"Code units currently allocated.",
		[]string{"state"}, nil)
	hooksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "state", "shutdown_hooks"),
		"Registered shutdown hooks.",
		[]string{"state"}, nil)
	symbolsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "state", "symbols"),
		"Interned symbols.",
		[]string{"state"}, nil)
	heapObjectsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "gc", "heap_objects"),
		"Live heap objects.",
		[]string{"state"}, nil)
	gcDisabledDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "gc", "disabled"),
		"1 while the collector is disabled.",
		[]string{"state"}, nil)

	allocLiveBlocksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "alloc", "live_blocks"),
		"Blocks handed out by the allocator and not yet released.",
		[]string{"state"}, nil)
	allocLiveBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "alloc", "live_bytes"),
		"Bytes held in live allocator blocks.",
		[]string{"state"}, nil)
	allocRequestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "alloc", "requests_total"),
		"Allocator requests by outcome.",
		[]string{"state", "op"}, nil)
)

// Collector reports one State. The tracker may be nil when the State was
// opened without a TrackingAllocator; allocator metrics are then omitted.
//
// Collect reads the State directly, so scrapes must happen on the goroutine
// that owns it.
type Collector struct {
	state   *vm.State
	tracker *vm.TrackingAllocator
}

// NewCollector returns a collector for s.
func NewCollector(s *vm.State, tracker *vm.TrackingAllocator) *Collector {
	return &Collector{state: s, tracker: tracker}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- liveUnitsDesc
	ch <- hooksDesc
	ch <- symbolsDesc
	ch <- heapObjectsDesc
	ch <- gcDisabledDesc
	if c.tracker != nil {
		ch <- allocLiveBlocksDesc
		ch <- allocLiveBytesDesc
		ch <- allocRequestsDesc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	id := c.state.ID().String()
	st := c.state.Stats()

	gauge := func(desc *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), id)
	}
	gauge(liveUnitsDesc, st.LiveCodeUnits)
	gauge(hooksDesc, st.ShutdownHooks)
	gauge(symbolsDesc, st.Symbols)
	gauge(heapObjectsDesc, st.HeapObjects)
	disabled := 0
	if st.GCDisabled {
		disabled = 1
	}
	gauge(gcDisabledDesc, disabled)

	if c.tracker == nil {
		return
	}
	as := c.tracker.Stats()
	gauge(allocLiveBlocksDesc, as.LiveBlocks)
	gauge(allocLiveBytesDesc, as.LiveBytes)
	for op, n := range map[string]int{
		"alloc":       as.Allocs,
		"resize":      as.Resizes,
		"free":        as.Frees,
		"failure":     as.Failures,
		"double_free": as.DoubleFrees,
	} {
		ch <- prometheus.MustNewConstMetric(allocRequestsDesc, prometheus.CounterValue, float64(n), id, op)
	}
}
