package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks drift scan volume and outcomes.
type Metrics struct {
	ScansTotal     prometheus.Counter
	ScansSkipped   prometheus.Counter
	DriftsDetected *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
}

// New creates and registers the drift metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		ScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosswalk_drift_scans_total",
			Help: "Drift scans executed",
		}),
		ScansSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosswalk_drift_scans_skipped_total",
			Help: "Drift scans that observed another scan's result",
		}),
		DriftsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crosswalk_drifts_detected_total",
			Help: "Drifts recorded by change type",
		}, []string{"change_type"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crosswalk_drift_scan_duration_seconds",
			Help:    "Drift scan wall time",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
