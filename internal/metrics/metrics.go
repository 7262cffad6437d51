package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const (
	namespace = "cardest"

	LblOperator = "operator"
	LblOutcome  = "outcome"
	LblType     = "type"
	LblResult   = "result"

	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"

	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Estimation metrics.
var (
	EstimationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "total",
			Help:      "Counter of group expression estimations by operator and outcome.",
		}, []string{LblOperator, LblOutcome})

	EstimationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "duration_seconds",
			Help:      "Bucketed histogram of the time spent estimating one memo.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20), // 10us ~ 5s
		})

	UnknownColumnStatsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "unknown_column_stats_total",
			Help:      "Counter of estimation passes that used unknown column statistics.",
		})

	JoinReorderDisabledCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estimation",
			Name:      "join_reorder_disabled_total",
			Help:      "Counter of queries whose statistics were too poor for join reordering.",
		})

	StatsCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "cache_lookup_total",
			Help:      "Counter of statistics cache lookups by entry type and result.",
		}, []string{LblType, LblResult})

	StatsCacheGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "cache_entries",
			Help:      "Number of statistics cache entries by type.",
		}, []string{LblType})
)

// Register registers every collector with reg.
func Register(reg prometheus.Registerer) error {
	var err error
	for _, c := range []prometheus.Collector{
		EstimationCounter,
		EstimationDuration,
		UnknownColumnStatsCounter,
		JoinReorderDisabledCounter,
		StatsCacheCounter,
		StatsCacheGauge,
	} {
		err = multierr.Append(err, reg.Register(c))
	}
	return err
}
