package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks coverage recomputation volume and outcomes.
type Metrics struct {
	RecomputesTotal   prometheus.Counter
	RecomputeFailures prometheus.Counter
	CoverageScore     prometheus.Histogram
	SummaryCacheHits  prometheus.Counter
	SummaryCacheMiss  prometheus.Counter
}

// New creates and registers the crosswalk metrics with the default
// registry.
func New() *Metrics {
	return &Metrics{
		RecomputesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosswalk_coverage_recomputes_total",
			Help: "Coverage recomputations performed",
		}),
		RecomputeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosswalk_coverage_recompute_failures_total",
			Help: "Coverage recomputations that failed",
		}),
		CoverageScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crosswalk_coverage_score",
			Help:    "Distribution of computed coverage scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		SummaryCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosswalk_summary_cache_hits_total",
			Help: "Summary reads served from cache",
		}),
		SummaryCacheMiss: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crosswalk_summary_cache_misses_total",
			Help: "Summary reads computed from the store",
		}),
	}
}
