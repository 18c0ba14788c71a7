package rollup

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/kpi-rollup/internal/domain"
)

// linker resolves predecessor references. Lookups read committed rows only;
// a concurrent writer may leave a stale link that the next recompute fixes.
type linker struct {
	store SummaryStore
}

func (l linker) linkWeek(ctx context.Context, w *domain.WeeklySummary) error {
	prev, err := l.store.FindLatestWeeklyBefore(ctx, w.TenantID, w.MetricCode, w.WeekStart)
	if errors.Is(err, ErrSummaryNotFound) {
		w.PreviousWeekID = nil
		w.VsPreviousChange, w.VsPreviousVerdict = 0, ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("find previous week: %w", err)
	}
	id := prev.ID
	w.PreviousWeekID = &id
	change, verdict := domain.CompareTo(w.ActualValue, prev.ActualValue)
	w.VsPreviousChange, w.VsPreviousVerdict = domain.Round2(change), verdict
	return nil
}

func (l linker) linkMonth(ctx context.Context, m *domain.MonthlySummary) error {
	m.PreviousMonthID = nil
	m.VsPreviousChange, m.VsPreviousVerdict = 0, ""
	prev, err := l.store.FindLatestMonthlyBefore(ctx, m.TenantID, m.MetricCode, m.Year, m.Month)
	switch {
	case errors.Is(err, ErrSummaryNotFound):
	case err != nil:
		return fmt.Errorf("find previous month: %w", err)
	default:
		id := prev.ID
		m.PreviousMonthID = &id
		change, verdict := domain.CompareTo(m.ActualValue, prev.ActualValue)
		m.VsPreviousChange, m.VsPreviousVerdict = domain.Round2(change), verdict
	}

	m.SameMonthLastYearID = nil
	m.VsLastYearChange, m.VsLastYearVerdict = 0, ""
	m.SeasonalityIndex = 1
	ly, lm := domain.PreviousYearMonth(m.Year, m.Month)
	lastYear, err := l.store.GetMonthly(ctx, m.TenantID, m.MetricCode, ly, lm)
	switch {
	case errors.Is(err, ErrSummaryNotFound):
	case err != nil:
		return fmt.Errorf("find same month last year: %w", err)
	default:
		id := lastYear.ID
		m.SameMonthLastYearID = &id
		change, verdict := domain.CompareTo(m.ActualValue, lastYear.ActualValue)
		m.VsLastYearChange, m.VsLastYearVerdict = domain.Round2(change), verdict
		if lastYear.ActualValue > 0 {
			m.SeasonalityIndex = domain.Round2(m.ActualValue / lastYear.ActualValue)
		}
	}
	return nil
}
