// Package trend classifies the recent weekly history of a metric.
package trend

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/pkg/logger"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

// DefaultWindow is the number of weeks analyzed when the caller passes 0.
const DefaultWindow = 12

const (
	directionThreshold  = 10.0
	volatilityThreshold = 30.0
)

// WeeklySource returns the most recent weekly summaries, newest first.
type WeeklySource interface {
	RecentWeekly(ctx context.Context, tenantID, metricCode string, limit int) ([]domain.WeeklySummary, error)
}

// Cache stores computed reports. Implementations may be lossy.
type Cache interface {
	Get(ctx context.Context, tenantID, metricCode string, window int) (*domain.TrendReport, bool, error)
	Set(ctx context.Context, window int, report *domain.TrendReport) error
}

// Analyzer computes trend reports.
type Analyzer struct {
	tenants rollup.TenantDirectory
	catalog rollup.MetricCatalog
	weeks   WeeklySource
	cache   Cache
	window  int
}

// NewAnalyzer creates an analyzer. cache may be nil. A non-positive
// defaultWindow falls back to DefaultWindow.
func NewAnalyzer(tenants rollup.TenantDirectory, catalog rollup.MetricCatalog, weeks WeeklySource, cache Cache, defaultWindow int) *Analyzer {
	if defaultWindow <= 0 {
		defaultWindow = DefaultWindow
	}
	return &Analyzer{tenants: tenants, catalog: catalog, weeks: weeks, cache: cache, window: defaultWindow}
}

// Analyze returns the trend over the last window weeks (the default window
// when window <= 0). It fails with rollup.ErrInsufficientHistory only when
// no weekly summary exists.
func (a *Analyzer) Analyze(ctx context.Context, tenantID, metricCode string, window int) (*domain.TrendReport, error) {
	if window <= 0 {
		window = a.window
	}

	ok, err := a.tenants.TenantExists(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", rollup.ErrUnknownTenant, tenantID)
	}
	if _, err := a.catalog.Metric(ctx, metricCode); err != nil {
		if errors.Is(err, rollup.ErrUnknownMetric) {
			return nil, fmt.Errorf("%w: %s", rollup.ErrUnknownMetric, metricCode)
		}
		return nil, fmt.Errorf("lookup metric: %w", err)
	}

	if a.cache != nil {
		report, hit, err := a.cache.Get(ctx, tenantID, metricCode, window)
		if err != nil {
			logger.Warn("trend cache read failed", "tenant", tenantID, "metric", metricCode, "error", err)
		} else if hit {
			return report, nil
		}
	}

	recent, err := a.weeks.RecentWeekly(ctx, tenantID, metricCode, window)
	if err != nil {
		return nil, fmt.Errorf("load weekly summaries: %w", err)
	}
	if len(recent) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", rollup.ErrInsufficientHistory, tenantID, metricCode)
	}

	report := Compute(recent)
	report.TenantID = tenantID
	report.MetricCode = metricCode

	if a.cache != nil {
		if err := a.cache.Set(ctx, window, report); err != nil {
			logger.Warn("trend cache write failed", "tenant", tenantID, "metric", metricCode, "error", err)
		}
	}
	return report, nil
}

// Compute builds a report from summaries ordered newest first. The series is
// analyzed oldest first. recent must not be empty.
func Compute(recent []domain.WeeklySummary) *domain.TrendReport {
	n := len(recent)
	points := make([]domain.TrendPoint, n)
	values := make([]float64, n)
	for i := range recent {
		w := recent[n-1-i]
		values[i] = w.ActualValue
		points[i] = domain.TrendPoint{
			WeekStart:   w.WeekStart.Format(domain.DateLayout),
			Label:       w.Label,
			Actual:      w.ActualValue,
			Achievement: w.Achievement,
			Status:      w.Status,
		}
	}

	// Odd-length series share the middle value between both halves.
	first := values[:(n+1)/2]
	second := values[n/2:]
	firstMean, secondMean := mean(first), mean(second)

	var pct float64
	if firstMean > 0 {
		pct = (secondMean - firstMean) / firstMean * 100
	}

	direction := domain.TrendStable
	switch {
	case pct > directionThreshold:
		direction = domain.TrendImproving
	case pct < -directionThreshold:
		direction = domain.TrendDeclining
	}

	avg := mean(values)
	std := stddev(values, avg)
	var cv float64
	if avg > 0 {
		cv = std / avg * 100
	}
	if cv > volatilityThreshold {
		direction = domain.TrendVolatile
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	return &domain.TrendReport{
		WeeksAnalyzed:          n,
		Direction:              direction,
		TrendPercentage:        domain.Round2(pct),
		Mean:                   domain.Round2(avg),
		StdDeviation:           domain.Round2(std),
		CoefficientOfVariation: domain.Round2(cv),
		Min:                    lo,
		Max:                    hi,
		Weeks:                  points,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - avg
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
