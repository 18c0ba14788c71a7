package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/observability"
	"github.com/ignite/kpi-rollup/internal/pkg/logger"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

// PeriodResult is the outcome of one period in a recalculation walk.
type PeriodResult struct {
	Kind      domain.PeriodKind `json:"period_type"`
	Period    string            `json:"period"`
	Success   bool              `json:"success"`
	SummaryID string            `json:"summary_id,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// RecalcReport lists every period visited by Recalculate.
type RecalcReport struct {
	TenantID     string         `json:"tenant_id"`
	MetricCode   string         `json:"kpi_code"`
	JobID        string         `json:"job_id"`
	Weekly       []PeriodResult `json:"weekly"`
	Monthly      []PeriodResult `json:"monthly"`
	SuccessCount int            `json:"success_count"`
	ErrorCount   int            `json:"error_count"`
}

func (r *RecalcReport) add(res PeriodResult) {
	if res.Kind == domain.PeriodWeek {
		r.Weekly = append(r.Weekly, res)
	} else {
		r.Monthly = append(r.Monthly, res)
	}
	if res.Success {
		r.SuccessCount++
	} else {
		r.ErrorCount++
	}
	observability.RecordBackfillPeriod(string(res.Kind), res.Success)
}

// Recalculate recomputes every week and every month that intersects
// [start, end] for one metric, overwriting existing summaries. Weeks run
// before months so monthly rollups see the fresh weekly rows.
//
// Cancellation is checked between periods; the partial report is returned
// together with ctx.Err().
func (o *Orchestrator) Recalculate(ctx context.Context, tenantID, metricCode string, start, end time.Time) (*RecalcReport, error) {
	start, end = domain.Date(start), domain.Date(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", rollup.ErrInvalidPeriod,
			end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}
	if _, err := o.engine.Resolve(ctx, tenantID, metricCode); err != nil {
		return nil, err
	}

	ctx, jobID := o.ensureJob(ctx)
	report := &RecalcReport{TenantID: tenantID, MetricCode: metricCode, JobID: jobID}

	for _, ws := range domain.WeekStartsBetween(start, end) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := PeriodResult{Kind: domain.PeriodWeek, Period: ws.Format(domain.DateLayout)}
		sum, err := o.engine.RollupWeek(ctx, tenantID, metricCode, ws)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Success, res.SummaryID = true, sum.ID
		}
		report.add(res)
	}

	for _, ym := range domain.MonthsBetween(start, end) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := PeriodResult{Kind: domain.PeriodMonth, Period: ym.String()}
		sum, err := o.engine.RollupMonth(ctx, tenantID, metricCode, ym.Year, ym.Month)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Success, res.SummaryID = true, sum.ID
		}
		report.add(res)
	}

	logger.Info("recalculation finished",
		"tenant", tenantID, "metric", metricCode, "job_id", jobID,
		"succeeded", report.SuccessCount, "failed", report.ErrorCount)
	return report, nil
}

// AutoReport is the result of AutoAggregate.
type AutoReport struct {
	TenantID string         `json:"tenant_id"`
	JobID    string         `json:"job_id"`
	NoData   bool           `json:"no_data"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Weekly   []*BatchReport `json:"weekly"`
	Monthly  []*BatchReport `json:"monthly"`
}

// Months lists the months visited, in order.
func (r *AutoReport) Months() []domain.YearMonth {
	out := make([]domain.YearMonth, 0, len(r.Monthly))
	for _, b := range r.Monthly {
		out = append(out, domain.YearMonth{Year: b.Year, Month: b.Month})
	}
	return out
}

// AutoAggregate backfills every week and month from the tenant's earliest
// daily measurement through the week and month containing upTo. A tenant
// without daily data is a successful no-op.
func (o *Orchestrator) AutoAggregate(ctx context.Context, tenantID string, upTo time.Time) (*AutoReport, error) {
	if _, err := o.selectedMetrics(ctx, tenantID); err != nil {
		return nil, err
	}

	earliest, ok, err := o.engine.Ledger().EarliestDate(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("find earliest measurement: %w", err)
	}
	ctx, jobID := o.ensureJob(ctx)
	report := &AutoReport{TenantID: tenantID, JobID: jobID}
	if !ok {
		report.NoData = true
		return report, nil
	}

	from := domain.WeekStart(earliest)
	weeksTo := domain.WeekEnd(domain.WeekStart(upTo))
	monthsTo := domain.MonthEnd(upTo.Year(), int(upTo.Month()))
	report.From = from.Format(domain.DateLayout)
	report.To = monthsTo.Format(domain.DateLayout)
	if weeksTo.After(monthsTo) {
		report.To = weeksTo.Format(domain.DateLayout)
	}

	for _, ws := range domain.WeekStartsBetween(from, weeksTo) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := o.AggregateAllWeekly(ctx, tenantID, ws)
		if err != nil {
			return report, err
		}
		observability.RecordBackfillPeriod(string(domain.PeriodWeek), batch.ErrorCount == 0)
		report.Weekly = append(report.Weekly, batch)
	}

	for _, ym := range domain.MonthsBetween(from, monthsTo) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := o.AggregateAllMonthly(ctx, tenantID, ym.Year, ym.Month)
		if err != nil {
			return report, err
		}
		observability.RecordBackfillPeriod(string(domain.PeriodMonth), batch.ErrorCount == 0)
		report.Monthly = append(report.Monthly, batch)
	}

	logger.Info("auto-aggregation finished",
		"tenant", tenantID, "job_id", jobID, "from", report.From, "to", report.To,
		"weeks", len(report.Weekly), "months", len(report.Monthly))
	return report, nil
}
