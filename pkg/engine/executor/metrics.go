package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a container of metrics shared by the components of every query
// executed by an engine. A nil *Metrics records nothing.
type Metrics struct {
	// registry to collect metrics as a unit.
	reg *prometheus.Registry

	drainsTotal     *prometheus.CounterVec
	rowsTotal       *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	drainSeconds    *prometheus.HistogramVec
	groupsPerQuery  prometheus.Histogram
	tokenBytes      prometheus.Histogram
	tokensDiscarded prometheus.Counter
}

// NewMetrics creates the executor metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		reg: reg,

		drainsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crossquery_executor_drains_total",
			Help: "Total number of drain calls by component",
		}, []string{"component"}),
		rowsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crossquery_executor_rows_total",
			Help: "Total number of rows returned by component",
		}, []string{"component"}),
		failuresTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crossquery_executor_upstream_failures_total",
			Help: "Total number of upstream failures propagated by component and status code",
		}, []string{"component", "status_code"}),
		drainSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "crossquery_executor_drain_seconds",
			Help: "Number of seconds a drain call took, by component",

			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}, []string{"component"}),

		groupsPerQuery: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "crossquery_executor_groups_per_query",
			Help:    "Number of groups computed by GROUP BY queries",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		tokenBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "crossquery_executor_continuation_token_bytes",
			Help:    "Size of the continuation tokens handed to callers",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		}),
		tokensDiscarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "crossquery_executor_continuation_tokens_discarded_total",
			Help: "Total number of continuation tokens discarded for exceeding the maximum token size",
		}),
	}
}

// Register registers metrics to report to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error { return reg.Register(m.reg) }

// Unregister unregisters metrics from the provided Registerer.
func (m *Metrics) Unregister(reg prometheus.Registerer) { reg.Unregister(m.reg) }

func (m *Metrics) observeGroups(n int) {
	if m == nil {
		return
	}
	m.groupsPerQuery.Observe(float64(n))
}

// ObserveToken records the size of a continuation token and whether it was
// discarded.
func (m *Metrics) ObserveToken(size int, discarded bool) {
	if m == nil {
		return
	}
	m.tokenBytes.Observe(float64(size))
	if discarded {
		m.tokensDiscarded.Inc()
	}
}
