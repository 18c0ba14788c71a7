// Package backfill drives the rollup engines across the metrics of a tenant
// and across date ranges. Batch calls never abort on a single metric or
// period failure; failures are returned next to the successes so callers can
// retry only what failed.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Orchestrator runs batch rollups on top of a rollup.Service.
type Orchestrator struct {
	engine      *rollup.Service
	config      rollup.KPIConfiguration
	concurrency int
	newJobID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds how many metrics of one batch roll up in parallel.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithJobIDs replaces the job id generator.
func WithJobIDs(gen func() string) Option {
	return func(o *Orchestrator) { o.newJobID = gen }
}

// New creates an orchestrator.
func New(engine *rollup.Service, config rollup.KPIConfiguration, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:      engine,
		config:      config,
		concurrency: defaultConcurrency,
		newJobID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MetricResult is the outcome of one metric inside a batch.
type MetricResult struct {
	MetricCode string `json:"kpi_code"`
	Success    bool   `json:"success"`
	SummaryID  string `json:"summary_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchReport summarizes one aggregate-all call.
type BatchReport struct {
	TenantID     string            `json:"tenant_id"`
	Kind         domain.PeriodKind `json:"period_type"`
	Period       string            `json:"period"`
	Year         int               `json:"year,omitempty"`
	Month        int               `json:"month,omitempty"`
	JobID        string            `json:"job_id"`
	Total        int               `json:"total"`
	SuccessCount int               `json:"success_count"`
	ErrorCount   int               `json:"error_count"`
	Results      []MetricResult    `json:"results"`
}

// ensureJob tags ctx with a fresh job id unless a caller already did.
func (o *Orchestrator) ensureJob(ctx context.Context) (context.Context, string) {
	if id := rollup.JobIDFrom(ctx); id != "" {
		return ctx, id
	}
	id := o.newJobID()
	return rollup.WithJobID(ctx, id), id
}

// selectedMetrics checks the structural preconditions of a batch: the tenant
// exists and has a KPI configuration.
func (o *Orchestrator) selectedMetrics(ctx context.Context, tenantID string) ([]string, error) {
	ok, err := o.engine.Tenants().TenantExists(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", rollup.ErrUnknownTenant, tenantID)
	}
	codes, err := o.config.SelectedMetrics(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tenantID, err)
	}
	return codes, nil
}

// AggregateAllWeekly rolls up the week containing weekStart for every metric
// the tenant selected.
func (o *Orchestrator) AggregateAllWeekly(ctx context.Context, tenantID string, weekStart time.Time) (*BatchReport, error) {
	codes, err := o.selectedMetrics(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ws := domain.WeekStart(weekStart)
	return o.fanOut(ctx, tenantID, domain.PeriodWeek, ws.Format(domain.DateLayout), codes,
		func(ctx context.Context, code string) (string, domain.Status, error) {
			sum, err := o.engine.RollupWeek(ctx, tenantID, code, ws)
			if err != nil {
				return "", "", err
			}
			return sum.ID, sum.Status, nil
		}), nil
}

// AggregateAllMonthly rolls up year/month for every metric the tenant
// selected.
func (o *Orchestrator) AggregateAllMonthly(ctx context.Context, tenantID string, year, month int) (*BatchReport, error) {
	if !domain.ValidMonth(month) {
		return nil, fmt.Errorf("%w: month %d", rollup.ErrInvalidPeriod, month)
	}
	codes, err := o.selectedMetrics(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	period := domain.YearMonth{Year: year, Month: month}.String()
	report := o.fanOut(ctx, tenantID, domain.PeriodMonth, period, codes,
		func(ctx context.Context, code string) (string, domain.Status, error) {
			sum, err := o.engine.RollupMonth(ctx, tenantID, code, year, month)
			if err != nil {
				return "", "", err
			}
			return sum.ID, sum.Status, nil
		})
	report.Year, report.Month = year, month
	return report, nil
}

type rollupFunc func(ctx context.Context, metricCode string) (id string, status domain.Status, err error)

// fanOut runs fn for every code with bounded parallelism. Results keep the
// order of codes.
func (o *Orchestrator) fanOut(ctx context.Context, tenantID string, kind domain.PeriodKind, period string, codes []string, fn rollupFunc) *BatchReport {
	ctx, jobID := o.ensureJob(ctx)
	report := &BatchReport{
		TenantID: tenantID,
		Kind:     kind,
		Period:   period,
		JobID:    jobID,
		Total:    len(codes),
		Results:  make([]MetricResult, len(codes)),
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, code := range codes {
		g.Go(func() error {
			res := MetricResult{MetricCode: code}
			id, status, err := fn(ctx, code)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Success = true
				res.SummaryID = id
				res.Status = string(status)
			}
			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range report.Results {
		if r.Success {
			report.SuccessCount++
		} else {
			report.ErrorCount++
		}
	}
	return report
}
