package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/observability"
)

// RollupMonth computes and upserts the monthly summary for year/month.
//
// Weekly summaries overlapping the month are the preferred source. A week
// that straddles a month boundary is attributed in full to both months.
// Without any overlapping weekly summary the month is aggregated straight
// from the daily ledger.
func (s *Service) RollupMonth(ctx context.Context, tenantID, metricCode string, year, month int) (sum *domain.MonthlySummary, err error) {
	started := time.Now()
	defer func() { observability.RecordRollup(string(domain.PeriodMonth), started, err) }()

	if !domain.ValidMonth(month) {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	metric, err := s.Resolve(ctx, tenantID, metricCode)
	if err != nil {
		return nil, err
	}

	monthStart := domain.MonthStart(year, month)
	monthEnd := domain.MonthEnd(year, month)

	sum = &domain.MonthlySummary{
		TenantID:    tenantID,
		MetricCode:  metric.Code,
		Year:        year,
		Month:       month,
		MonthStart:  monthStart,
		MonthEnd:    monthEnd,
		Label:       domain.MonthLabel(year, month),
		Quarter:     domain.Quarter(month),
		Unit:        metric.Unit,
		Aggregation: metric.Aggregation,
		Source:      domain.SourceNone,
		TotalDays:   domain.DaysInMonth(year, month),
		Status:      domain.StatusGrey,
	}

	weeks, err := s.store.ListWeeklyOverlapping(ctx, tenantID, metric.Code, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("load weekly summaries: %w", err)
	}
	rows, err := s.ledger.DailyValues(ctx, tenantID, metric.Code, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("load daily values: %w", err)
	}

	if len(weeks) > 0 {
		sum.Source = domain.SourceWeekly
		var (
			values []float64
			filled []domain.WeeklySummary
		)
		for _, w := range weeks {
			if w.CompletedDays == 0 {
				continue
			}
			values = append(values, w.ActualValue)
			filled = append(filled, w)
		}
		sum.ActualValue = domain.Round2(metric.Aggregation.Combine(values))
		applyWeeklyStats(sum, filled)
		// Boundary weeks count in full towards the value, but completeness
		// only counts days of this month that have a measurement.
		sum.CompletedDays = distinctDays(rows)
	} else if len(rows) > 0 {
		actual, days := aggregateDaily(metric.Aggregation, rows)
		sum.Source = domain.SourceDaily
		sum.ActualValue = domain.Round2(actual)
		sum.CompletedDays = days
	}

	if sum.CompletedDays > 0 {
		planned, hasPlan, err := s.plannedValue(ctx, tenantID, metric.Code, domain.Period{
			Kind: domain.PeriodMonth, Start: monthStart, End: monthEnd,
		})
		if err != nil {
			return nil, err
		}
		sc := score(sum.ActualValue, sum.CompletedDays, planned, hasPlan, s.bands.BandsFor(*metric))
		sum.HasTarget = sc.hasTarget
		sum.PlannedValue = sc.planned
		sum.Achievement = sc.achievement
		sum.Variance = sc.variance
		sum.TargetMet = sc.targetMet
		sum.Status = sc.status
	}
	sum.IsComplete = sum.CompletedDays == sum.TotalDays

	if err := s.links.linkMonth(ctx, sum); err != nil {
		return nil, err
	}

	sum.CalculatedAt = s.now().UTC()
	sum.CalculatedByJobID = JobIDFrom(ctx)

	if err := s.store.UpsertMonthly(ctx, sum); err != nil {
		return nil, fmt.Errorf("upsert monthly summary: %w", err)
	}
	s.afterWrite(ctx, tenantID, metric.Code, domain.PeriodMonth)
	return sum, nil
}
