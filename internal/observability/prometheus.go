package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels of pallet_return_requests_total
const (
	ReturnOutcomeOK                = "ok"
	ReturnOutcomeInvalid           = "invalid"
	ReturnOutcomeInsufficientStock = "insufficient_stock"
	ReturnOutcomeError             = "error"
)

// PalletMetrics holds the Prometheus counters of the pallet domain.
// A nil *PalletMetrics records nothing.
type PalletMetrics struct {
	registry       *prometheus.Registry
	syncItems      *prometheus.CounterVec
	returnRequests *prometheus.CounterVec
	palletsReturn  prometheus.Counter
}

// NewPalletMetrics registers the pallet counters and the runtime collectors
// on a fresh registry
func NewPalletMetrics() *PalletMetrics {
	reg := prometheus.NewRegistry()
	m := &PalletMetrics{
		registry: reg,
		syncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pallet_sync_items_total",
			Help: "Sync records processed, by result (inserted or rejected).",
		}, []string{"result"}),
		returnRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pallet_return_requests_total",
			Help: "Return requests handled, by outcome.",
		}, []string{"outcome"}),
		palletsReturn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pallets_returned_total",
			Help: "Pallets moved from IN_STOCK to RETURNED.",
		}),
	}
	reg.MustRegister(
		m.syncItems,
		m.returnRequests,
		m.palletsReturn,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordSync counts the inserted and rejected records of one sync batch
func (m *PalletMetrics) RecordSync(inserted, rejected int) {
	if m == nil {
		return
	}
	m.syncItems.WithLabelValues("inserted").Add(float64(inserted))
	m.syncItems.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordReturn counts a return request and the pallets it moved
func (m *PalletMetrics) RecordReturn(outcome string, returned int64) {
	if m == nil {
		return
	}
	m.returnRequests.WithLabelValues(outcome).Inc()
	if returned > 0 {
		m.palletsReturn.Add(float64(returned))
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *PalletMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
