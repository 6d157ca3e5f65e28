package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Calculation metrics
	RecordsCalculated *prometheus.CounterVec
	FactorMisses      *prometheus.CounterVec
	InvalidInputs     *prometheus.CounterVec

	// Netting metrics
	SnapshotsBuilt    *prometheus.CounterVec
	SnapshotDuration  prometheus.Histogram
	UnallocatedOffset prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Worker metrics
	StaleRefreshed prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsCalculated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghg_records_calculated_total",
				Help: "Total number of activity records converted to CO2e",
			},
			[]string{"scope"},
		),

		FactorMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghg_factor_misses_total",
				Help: "Total number of records without a matching emission factor",
			},
			[]string{"scope", "category"},
		),

		InvalidInputs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghg_invalid_inputs_total",
				Help: "Total number of rejected inputs",
			},
			[]string{"operation"},
		),

		SnapshotsBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghg_snapshots_built_total",
				Help: "Total number of net emission snapshots rebuilt",
			},
			[]string{"status"},
		),

		SnapshotDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ghg_snapshot_build_duration_seconds",
				Help:    "Duration of net emission snapshot rebuilds",
				Buckets: prometheus.DefBuckets,
			},
		),

		UnallocatedOffset: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ghg_unallocated_offset_tonnes_total",
				Help: "Retired scope1_2 offsets that could not be split because scope 1 and 2 gross were zero",
			},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ghg_snapshot_cache_hits_total",
				Help: "Total number of snapshot cache hits",
			},
		),

		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ghg_snapshot_cache_misses_total",
				Help: "Total number of snapshot cache misses",
			},
		),

		StaleRefreshed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ghg_stale_snapshots_refreshed_total",
				Help: "Total number of stale snapshots rebuilt by the worker",
			},
		),
	}
}

// ObserveSnapshot records one snapshot rebuild
func (m *Metrics) ObserveSnapshot(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SnapshotsBuilt.WithLabelValues(status).Inc()
	m.SnapshotDuration.Observe(time.Since(start).Seconds())
}
