package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
)

// WriteHook runs after a summary has been persisted. Hooks must not fail the
// rollup; they are used for cache invalidation and similar side effects.
type WriteHook func(ctx context.Context, tenantID, metricCode string, kind domain.PeriodKind)

// Deps bundles the collaborators of the rollup engines.
type Deps struct {
	Tenants TenantDirectory
	Catalog MetricCatalog
	Ledger  DailyLedger
	Plans   PlanSource
	Store   SummaryStore
}

// Service runs weekly and monthly rollups. All public methods are safe for
// concurrent use if the underlying collaborators are.
type Service struct {
	tenants TenantDirectory
	catalog MetricCatalog
	ledger  DailyLedger
	plans   PlanSource
	store   SummaryStore
	bands   BandResolver
	now     func() time.Time
	hooks   []WriteHook
	links   linker
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for calculated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBands sets the status band resolver.
func WithBands(b BandResolver) Option {
	return func(s *Service) { s.bands = b }
}

// WithWriteHook registers a hook called after every successful upsert.
func WithWriteHook(h WriteHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

// NewService creates a rollup service backed by the given collaborators.
// Plans may be nil, in which case no summary carries a target.
func NewService(d Deps, opts ...Option) *Service {
	s := &Service{
		tenants: d.Tenants,
		catalog: d.Catalog,
		ledger:  d.Ledger,
		plans:   d.Plans,
		store:   d.Store,
		bands:   StaticBands{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.links = linker{store: s.store}
	return s
}

// Tenants exposes the tenant directory to read-side collaborators.
func (s *Service) Tenants() TenantDirectory { return s.tenants }

// Store exposes the summary store to read-side collaborators.
func (s *Service) Store() SummaryStore { return s.store }

// Ledger exposes the daily ledger to read-side collaborators.
func (s *Service) Ledger() DailyLedger { return s.ledger }

// GetWeekly returns the stored summary for the week containing date.
func (s *Service) GetWeekly(ctx context.Context, tenantID, metricCode string, date time.Time) (*domain.WeeklySummary, error) {
	metric, err := s.Resolve(ctx, tenantID, metricCode)
	if err != nil {
		return nil, err
	}
	return s.store.GetWeekly(ctx, tenantID, metric.Code, domain.WeekStart(date))
}

// GetMonthly returns the stored summary for the given month.
func (s *Service) GetMonthly(ctx context.Context, tenantID, metricCode string, year, month int) (*domain.MonthlySummary, error) {
	if !domain.ValidMonth(month) {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	metric, err := s.Resolve(ctx, tenantID, metricCode)
	if err != nil {
		return nil, err
	}
	return s.store.GetMonthly(ctx, tenantID, metric.Code, year, month)
}

// Resolve checks that the tenant exists and loads the metric definition.
// Metrics with an unknown aggregation method are treated as sums.
func (s *Service) Resolve(ctx context.Context, tenantID, metricCode string) (*domain.MetricDefinition, error) {
	ok, err := s.tenants.TenantExists(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	metric, err := s.catalog.Metric(ctx, metricCode)
	if errors.Is(err, ErrUnknownMetric) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metricCode)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup metric: %w", err)
	}
	if !metric.Aggregation.Valid() {
		metric.Aggregation = domain.AggregateSum
	}
	return metric, nil
}

func (s *Service) plannedValue(ctx context.Context, tenantID, metricCode string, p domain.Period) (float64, bool, error) {
	if s.plans == nil {
		return 0, false, nil
	}
	v, ok, err := s.plans.PlannedValue(ctx, tenantID, metricCode, p)
	if err != nil {
		return 0, false, fmt.Errorf("lookup plan: %w", err)
	}
	return v, ok, nil
}

func (s *Service) afterWrite(ctx context.Context, tenantID, metricCode string, kind domain.PeriodKind) {
	for _, h := range s.hooks {
		h(ctx, tenantID, metricCode, kind)
	}
}

// scorecard holds the plan-derived fields shared by both summary kinds.
type scorecard struct {
	hasTarget   bool
	planned     float64
	achievement float64
	variance    float64
	targetMet   bool
	status      domain.Status
}

func score(actual float64, completedDays int, planned float64, hasPlan bool, bands domain.BandSet) scorecard {
	sc := scorecard{}
	if hasPlan {
		sc.planned = domain.Round2(planned)
		sc.variance = domain.Round2(actual - planned)
	}
	achievement, defined := domain.Achievement(actual, planned, hasPlan)
	if defined {
		sc.hasTarget = true
		sc.achievement = domain.Round2(achievement)
		sc.targetMet = achievement >= 100
	}
	sc.status = domain.ResolveStatus(completedDays, sc.hasTarget, sc.achievement, bands)
	return sc
}

// aggregateDaily combines ledger rows with method. Rows sharing a date are
// combined first so sub-day entries collapse to one value per day. Returns
// the aggregate and the number of distinct days.
func aggregateDaily(method domain.AggregationMethod, rows []domain.DailyMeasurement) (float64, int) {
	var (
		days    []float64
		current []float64
		last    time.Time
	)
	for i, row := range rows {
		d := domain.Date(row.Date)
		if i > 0 && !d.Equal(last) {
			days = append(days, method.Combine(current))
			current = current[:0]
		}
		current = append(current, row.Value)
		last = d
	}
	if len(current) > 0 {
		days = append(days, method.Combine(current))
	}
	return method.Combine(days), len(days)
}

type jobIDKey struct{}

// WithJobID tags every summary written under ctx with the given job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFrom returns the job id stored in ctx, if any.
func JobIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
