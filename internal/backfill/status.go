package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

// MetricStatus describes the rollup state of one metric around a date.
type MetricStatus struct {
	DailyCount          int        `json:"daily_count"`
	HasWeekly           bool       `json:"has_weekly_summary"`
	WeeklyComplete      bool       `json:"weekly_complete"`
	WeeklyCalculatedAt  *time.Time `json:"weekly_calculated_at"`
	HasMonthly          bool       `json:"has_monthly_summary"`
	MonthlyComplete     bool       `json:"monthly_complete"`
	MonthlyCalculatedAt *time.Time `json:"monthly_calculated_at"`
	NeedsWeekly         bool       `json:"needs_weekly_aggregation"`
	NeedsMonthly        bool       `json:"needs_monthly_aggregation"`
}

// StatusReport is the read-only diagnostic returned by Status.
type StatusReport struct {
	TenantID  string                  `json:"tenant_id"`
	Date      string                  `json:"date"`
	WeekStart string                  `json:"week_start"`
	Year      int                     `json:"year"`
	Month     int                     `json:"month"`
	Metrics   map[string]MetricStatus `json:"kpis"`
}

// Status reports, for every selected metric, whether the week and month
// containing date have been summarized and whether a rollup is needed.
// It never writes.
func (o *Orchestrator) Status(ctx context.Context, tenantID string, date time.Time) (*StatusReport, error) {
	codes, err := o.selectedMetrics(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	date = domain.Date(date)
	ws := domain.WeekStart(date)
	year, month := date.Year(), int(date.Month())
	report := &StatusReport{
		TenantID:  tenantID,
		Date:      date.Format(domain.DateLayout),
		WeekStart: ws.Format(domain.DateLayout),
		Year:      year,
		Month:     month,
		Metrics:   make(map[string]MetricStatus, len(codes)),
	}

	store := o.engine.Store()
	for _, code := range codes {
		var st MetricStatus

		rows, err := o.engine.Ledger().DailyValues(ctx, tenantID, code, ws, domain.WeekEnd(ws))
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", code, err)
		}
		st.DailyCount = len(rows)

		weekly, err := store.GetWeekly(ctx, tenantID, code, ws)
		switch {
		case errors.Is(err, rollup.ErrSummaryNotFound):
		case err != nil:
			return nil, fmt.Errorf("status %s: %w", code, err)
		default:
			st.HasWeekly = true
			st.WeeklyComplete = weekly.IsComplete
			at := weekly.CalculatedAt
			st.WeeklyCalculatedAt = &at
		}

		monthly, err := store.GetMonthly(ctx, tenantID, code, year, month)
		switch {
		case errors.Is(err, rollup.ErrSummaryNotFound):
		case err != nil:
			return nil, fmt.Errorf("status %s: %w", code, err)
		default:
			st.HasMonthly = true
			st.MonthlyComplete = monthly.IsComplete
			at := monthly.CalculatedAt
			st.MonthlyCalculatedAt = &at
		}

		st.NeedsWeekly = st.DailyCount > 0 && !st.HasWeekly
		st.NeedsMonthly = st.HasWeekly && !st.HasMonthly
		report.Metrics[code] = st
	}
	return report, nil
}
