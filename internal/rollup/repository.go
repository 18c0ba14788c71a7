package rollup

import (
	"context"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
)

// TenantDirectory answers whether a tenant exists.
type TenantDirectory interface {
	TenantExists(ctx context.Context, tenantID string) (bool, error)
}

// MetricCatalog resolves metric codes. Returns ErrUnknownMetric for codes
// that are not in the catalog.
type MetricCatalog interface {
	Metric(ctx context.Context, code string) (*domain.MetricDefinition, error)
}

// DailyLedger is the read side of the append-only daily measurement store.
type DailyLedger interface {
	// DailyValues returns the rows for one tenant and metric with dates in
	// [from, to] (inclusive), ordered by date.
	DailyValues(ctx context.Context, tenantID, metricCode string, from, to time.Time) ([]domain.DailyMeasurement, error)

	// EarliestDate returns the first date with any measurement for the
	// tenant across all metrics. ok is false when the tenant has no rows.
	EarliestDate(ctx context.Context, tenantID string) (date time.Time, ok bool, err error)
}

// KPIConfiguration lists the metric codes a tenant has selected. Returns
// ErrMissingConfiguration when the tenant has no configuration row.
type KPIConfiguration interface {
	SelectedMetrics(ctx context.Context, tenantID string) ([]string, error)
}

// PlanSource supplies optional targets. ok is false when no plan is set.
type PlanSource interface {
	PlannedValue(ctx context.Context, tenantID, metricCode string, period domain.Period) (value float64, ok bool, err error)
}

// SummaryStore persists weekly and monthly summaries. Lookups return
// ErrSummaryNotFound when no row matches. Implementations must provide an
// atomic single-row upsert and be safe for concurrent use.
type SummaryStore interface {
	// UpsertWeekly creates or overwrites the row keyed by (tenant, metric,
	// week start) and sets s.ID to the persisted id.
	UpsertWeekly(ctx context.Context, s *domain.WeeklySummary) error
	GetWeekly(ctx context.Context, tenantID, metricCode string, weekStart time.Time) (*domain.WeeklySummary, error)
	// FindLatestWeeklyBefore returns the summary with the greatest week start
	// strictly earlier than weekStart.
	FindLatestWeeklyBefore(ctx context.Context, tenantID, metricCode string, weekStart time.Time) (*domain.WeeklySummary, error)
	// ListWeeklyOverlapping returns summaries whose start or end date falls in
	// [from, to], ordered by week start.
	ListWeeklyOverlapping(ctx context.Context, tenantID, metricCode string, from, to time.Time) ([]domain.WeeklySummary, error)
	// RecentWeekly returns up to limit summaries, most recent week first.
	RecentWeekly(ctx context.Context, tenantID, metricCode string, limit int) ([]domain.WeeklySummary, error)

	// UpsertMonthly creates or overwrites the row keyed by (tenant, metric,
	// year, month) and sets s.ID to the persisted id.
	UpsertMonthly(ctx context.Context, s *domain.MonthlySummary) error
	GetMonthly(ctx context.Context, tenantID, metricCode string, year, month int) (*domain.MonthlySummary, error)
	// FindLatestMonthlyBefore returns the summary with the greatest
	// (year, month) strictly earlier than the given month.
	FindLatestMonthlyBefore(ctx context.Context, tenantID, metricCode string, year, month int) (*domain.MonthlySummary, error)
}

// BandResolver picks the status bands for a metric.
type BandResolver interface {
	BandsFor(metric domain.MetricDefinition) domain.BandSet
}

// StaticBands resolves bands from configuration: valid bands on the catalog
// entry win, then a per-metric override, then Default.
type StaticBands struct {
	Default   domain.BandSet
	PerMetric map[string]domain.BandSet
}

// BandsFor implements BandResolver.
func (b StaticBands) BandsFor(metric domain.MetricDefinition) domain.BandSet {
	if len(metric.Bands) > 0 && metric.Bands.Validate() == nil {
		return metric.Bands
	}
	if set, ok := b.PerMetric[metric.Code]; ok && len(set) > 0 {
		return set
	}
	return b.Default
}
