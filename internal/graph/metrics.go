package graph

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	nodesDesc = prometheus.NewDesc(
		"trellis_nodes",
		"Indexed node instances per type.",
		[]string{"type"}, nil,
	)
	pendingDesc = prometheus.NewDesc(
		"trellis_pending_nodes",
		"Forward references that were never typed.",
		nil, nil,
	)
	typesDesc = prometheus.NewDesc(
		"trellis_types",
		"Types registered in the dictionary.",
		nil, nil,
	)
)

// Collector exports store gauges. Values are read at scrape time.
type Collector struct {
	store func() *Store
}

// NewCollector collects from a fixed store.
func NewCollector(s *Store) *Collector {
	return &Collector{store: func() *Store { return s }}
}

// NewHotSwapCollector collects from whatever store h currently holds.
func NewHotSwapCollector(h *HotSwapStore) *Collector {
	return &Collector{store: h.Current}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nodesDesc
	ch <- pendingDesc
	ch <- typesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.store()
	if s == nil {
		return
	}
	counts := s.Counts()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		ch <- prometheus.MustNewConstMetric(nodesDesc, prometheus.GaugeValue, float64(counts[t]), t)
	}
	ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(len(s.Pending())))
	ch <- prometheus.MustNewConstMetric(typesDesc, prometheus.GaugeValue, float64(s.Dictionary().Len()))
}
