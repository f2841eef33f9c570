// Package observability holds the Prometheus metrics for the credit service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the credit service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	allocationsTotal  *prometheus.CounterVec
	provisionsTotal   *prometheus.CounterVec
	provisionDuration *prometheus.HistogramVec
	vendorErrorsTotal prometheus.Counter
	importedItems     prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		allocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_allocations_total",
				Help: "Total credit allocations by outcome.",
			},
			[]string{"outcome"},
		),
		provisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credit_provisions_total",
				Help: "Total card provisioning attempts by outcome and supply source.",
			},
			[]string{"outcome", "source"},
		),
		provisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credit_provision_duration_seconds",
				Help:    "Duration of provisioning attempts by supply source.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		vendorErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_vendor_errors_total",
				Help: "Total errors from the card vendor API.",
			},
		),
		importedItems: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "credit_imported_items_total",
				Help: "Total inventory items loaded through CSV import.",
			},
		),
	}
}

// RecordAllocation counts one allocation attempt by outcome ("success",
// "hierarchy_violation", "insufficient_balance", "error").
func (m *Metrics) RecordAllocation(outcome string) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(outcome).Inc()
}

// RecordProvision counts one provisioning attempt and its duration. Source is
// "pool", "purchase" or "none" when no supply step was reached.
func (m *Metrics) RecordProvision(outcome, source string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.provisionsTotal.WithLabelValues(outcome, source).Inc()
	m.provisionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// RecordVendorError counts one failed card vendor call.
func (m *Metrics) RecordVendorError() {
	if m == nil {
		return
	}
	m.vendorErrorsTotal.Inc()
}

// RecordImportedItems counts items loaded by a CSV import.
func (m *Metrics) RecordImportedItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedItems.Add(float64(n))
}
