package rollup

import (
	"math"
	"sort"

	"github.com/ignite/kpi-rollup/internal/domain"
)

// applyWeeklyStats fills the week-level statistics of a monthly summary from
// the weeks that carried data. Ties for best and worst week go to the
// earliest week.
func applyWeeklyStats(sum *domain.MonthlySummary, weeks []domain.WeeklySummary) {
	sum.CompletedWeeks = len(weeks)
	sum.WeeklyBreakdown = make([]domain.WeekBreakdown, 0, len(weeks))
	if len(weeks) == 0 {
		return
	}

	values := make([]float64, 0, len(weeks))
	best, worst := weeks[0], weeks[0]
	for _, w := range weeks {
		values = append(values, w.ActualValue)
		if w.ActualValue > best.ActualValue {
			best = w
		}
		if w.ActualValue < worst.ActualValue {
			worst = w
		}
		switch w.Status {
		case domain.StatusGreen:
			sum.GreenWeeks++
		case domain.StatusYellow:
			sum.YellowWeeks++
		case domain.StatusRed:
			sum.RedWeeks++
		}
		sum.WeeklyBreakdown = append(sum.WeeklyBreakdown, domain.WeekBreakdown{
			Start:       w.WeekStart.Format(domain.DateLayout),
			Plan:        w.PlannedValue,
			Actual:      w.ActualValue,
			Achievement: w.Achievement,
			Status:      w.Status,
		})
	}

	var total float64
	for _, v := range values {
		total += v
	}
	avg := total / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	sum.WeeklyAverage = domain.Round2(avg)
	sum.WeeklyMedian = domain.Round2(median)
	sum.WeeklyStdDev = domain.Round2(math.Sqrt(sq / float64(n)))
	sum.WeeklyMin = sorted[0]
	sum.WeeklyMax = sorted[n-1]

	bestStart, worstStart := best.WeekStart, worst.WeekStart
	sum.BestWeekStart, sum.BestWeekValue = &bestStart, best.ActualValue
	sum.WorstWeekStart, sum.WorstWeekValue = &worstStart, worst.ActualValue
	sum.WeeksOnTargetPct = domain.Round2(float64(sum.GreenWeeks) / float64(n) * 100)
}

// distinctDays counts the calendar days present in rows.
func distinctDays(rows []domain.DailyMeasurement) int {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		seen[r.Date.Format(domain.DateLayout)] = struct{}{}
	}
	return len(seen)
}
