// Package metrics exposes prometheus instruments for the execution pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instruments the dispatcher and runners report to.
type Metrics struct {
	SubmissionsTotal *prometheus.CounterVec
	RunSeconds       prometheus.Histogram
	PoolRejections   prometheus.Counter
	ActiveRuns       prometheus.Gauge
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submissions by terminal status.",
		}, []string{"status"}),
		RunSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "submission_run_seconds",
			Help:    "Wall time spent executing one submission's test cases.",
			Buckets: prometheus.DefBuckets,
		}),
		PoolRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "submission_pool_rejections_total",
			Help: "Submissions rejected because the execution pool was saturated.",
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "submission_active_runs",
			Help: "Submissions currently executing.",
		}),
	}
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
