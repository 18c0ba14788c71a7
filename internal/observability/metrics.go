// Package observability registers the Prometheus collectors of the KPI
// rollup engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rollupRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kpi",
		Subsystem: "rollup",
		Name:      "runs_total",
		Help:      "Number of rollup executions grouped by period and outcome.",
	}, []string{"period", "outcome"})

	rollupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kpi",
		Subsystem: "rollup",
		Name:      "duration_seconds",
		Help:      "Time spent computing and persisting one summary.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"period"})

	backfillPeriods = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kpi",
		Subsystem: "backfill",
		Name:      "periods_total",
		Help:      "Periods visited by backfill and recalculation walks.",
	}, []string{"period", "outcome"})

	trendCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kpi",
		Subsystem: "trend_cache",
		Name:      "requests_total",
		Help:      "Trend report cache lookups by result.",
	}, []string{"result"})

	corrections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kpi",
		Subsystem: "corrections",
		Name:      "total",
		Help:      "Ledger correction events consumed by outcome.",
	}, []string{"outcome"})

	lastRollupGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kpi",
		Subsystem: "rollup",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful summary write.",
	})
)

func init() {
	prometheus.MustRegister(rollupRuns, rollupDuration, backfillPeriods, trendCacheRequests, corrections, lastRollupGauge)
}

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// RecordRollup counts one rollup and observes its duration.
func RecordRollup(period string, started time.Time, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	rollupRuns.WithLabelValues(period, outcome).Inc()
	rollupDuration.WithLabelValues(period).Observe(time.Since(started).Seconds())
	if err == nil {
		lastRollupGauge.Set(float64(time.Now().Unix()))
	}
}

// RecordBackfillPeriod counts one visited period of a backfill walk.
func RecordBackfillPeriod(period string, ok bool) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeError
	}
	backfillPeriods.WithLabelValues(period, outcome).Inc()
}

// RecordTrendCache counts a cache hit or miss.
func RecordTrendCache(hit bool) {
	if hit {
		trendCacheRequests.WithLabelValues("hit").Inc()
		return
	}
	trendCacheRequests.WithLabelValues("miss").Inc()
}

// RecordCorrection counts a consumed correction event.
func RecordCorrection(outcome string) {
	corrections.WithLabelValues(outcome).Inc()
}
