package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/observability"
)

// RollupWeek computes and upserts the weekly summary for the ISO week that
// contains date. A week without ledger rows is still persisted, zeroed and
// grey.
func (s *Service) RollupWeek(ctx context.Context, tenantID, metricCode string, date time.Time) (sum *domain.WeeklySummary, err error) {
	started := time.Now()
	defer func() { observability.RecordRollup(string(domain.PeriodWeek), started, err) }()

	metric, err := s.Resolve(ctx, tenantID, metricCode)
	if err != nil {
		return nil, err
	}

	weekStart := domain.WeekStart(date)
	weekEnd := domain.WeekEnd(weekStart)
	isoYear, isoWeek := weekStart.ISOWeek()

	sum = &domain.WeeklySummary{
		TenantID:    tenantID,
		MetricCode:  metric.Code,
		WeekStart:   weekStart,
		WeekEnd:     weekEnd,
		WeekNumber:  isoWeek,
		Year:        isoYear,
		Label:       domain.WeekLabel(weekStart),
		Unit:        metric.Unit,
		Aggregation: metric.Aggregation,
		TotalDays:   domain.DaysPerWeek,
		Status:      domain.StatusGrey,
	}

	rows, err := s.ledger.DailyValues(ctx, tenantID, metric.Code, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("load daily values: %w", err)
	}

	if len(rows) > 0 {
		actual, days := aggregateDaily(metric.Aggregation, rows)
		sum.ActualValue = domain.Round2(actual)
		sum.CompletedDays = days

		planned, hasPlan, err := s.plannedValue(ctx, tenantID, metric.Code, domain.Period{
			Kind: domain.PeriodWeek, Start: weekStart, End: weekEnd,
		})
		if err != nil {
			return nil, err
		}
		sc := score(sum.ActualValue, days, planned, hasPlan, s.bands.BandsFor(*metric))
		sum.HasTarget = sc.hasTarget
		sum.PlannedValue = sc.planned
		sum.Achievement = sc.achievement
		sum.Variance = sc.variance
		sum.TargetMet = sc.targetMet
		sum.Status = sc.status
	}
	sum.IsComplete = sum.CompletedDays == sum.TotalDays

	if err := s.links.linkWeek(ctx, sum); err != nil {
		return nil, err
	}

	sum.CalculatedAt = s.now().UTC()
	sum.CalculatedByJobID = JobIDFrom(ctx)

	if err := s.store.UpsertWeekly(ctx, sum); err != nil {
		return nil, fmt.Errorf("upsert weekly summary: %w", err)
	}
	s.afterWrite(ctx, tenantID, metric.Code, domain.PeriodWeek)
	return sum, nil
}
