package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sweep summary instruments. Both sweeps report through
// the same set, labeled by job.
type Metrics struct {
	registry *prometheus.Registry

	SweepsTotal     *prometheus.CounterVec
	SweepErrors     *prometheus.CounterVec
	BookingsChecked *prometheus.CounterVec
	BookingsSkipped *prometheus.CounterVec
	MetersShutOff   *prometheus.CounterVec
	Warnings        *prometheus.CounterVec
	SweepDuration   *prometheus.HistogramVec
}

// New creates the metric set on its own registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates and registers the metric set on the given
// registry.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_sweeps_total",
			Help: "Completed sweep runs per job.",
		}, []string{"job"}),
		SweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_sweep_errors_total",
			Help: "Per-booking errors isolated during sweeps.",
		}, []string{"job"}),
		BookingsChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_bookings_checked_total",
			Help: "Bookings evaluated per sweep job.",
		}, []string{"job"}),
		BookingsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_bookings_skipped_total",
			Help: "Bookings skipped per sweep job, by reason.",
		}, []string{"job", "reason"}),
		MetersShutOff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_meters_shut_off_total",
			Help: "Cutoff commands enqueued, by exhaustion reason.",
		}, []string{"reason"}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entitlement_warnings_total",
			Help: "Low-balance warning attempts, by outcome.",
		}, []string{"outcome"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entitlement_sweep_duration_seconds",
			Help:    "Wall-clock duration of sweep runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	registry.MustRegister(
		m.SweepsTotal,
		m.SweepErrors,
		m.BookingsChecked,
		m.BookingsSkipped,
		m.MetersShutOff,
		m.Warnings,
		m.SweepDuration,
	)

	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
