package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

// SummaryRepo implements rollup.SummaryStore. Upserts are single
// INSERT ... ON CONFLICT statements, so concurrent recomputes of the same
// key never produce duplicates and the row id survives recomputation.
type SummaryRepo struct{ db *sql.DB }

// NewSummaryRepo creates a Postgres-backed summary store.
func NewSummaryRepo(db *sql.DB) *SummaryRepo { return &SummaryRepo{db: db} }

type scanner interface {
	Scan(dest ...interface{}) error
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, ", ")
}

func dateOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return domain.Date(*t)
}

const weeklyColumns = `id, business_id, kpi_code, week_start_date, week_end_date, week_number, year,
	week_label, unit, aggregation_method, total_days, completed_days, actual_value,
	has_target, planned_value, achievement_percentage, variance, target_met, status,
	is_week_complete, previous_week_id, vs_previous_week_change, vs_previous_week_status,
	calculated_at, calculated_by_job_id`

func scanWeekly(s scanner) (*domain.WeeklySummary, error) {
	var (
		w              domain.WeeklySummary
		method, status string
		verdict        string
	)
	err := s.Scan(
		&w.ID, &w.TenantID, &w.MetricCode, &w.WeekStart, &w.WeekEnd, &w.WeekNumber, &w.Year,
		&w.Label, &w.Unit, &method, &w.TotalDays, &w.CompletedDays, &w.ActualValue,
		&w.HasTarget, &w.PlannedValue, &w.Achievement, &w.Variance, &w.TargetMet, &status,
		&w.IsComplete, &w.PreviousWeekID, &w.VsPreviousChange, &verdict,
		&w.CalculatedAt, &w.CalculatedByJobID,
	)
	if err != nil {
		return nil, err
	}
	w.Aggregation, _ = domain.ParseAggregationMethod(method)
	w.Status = domain.Status(status)
	w.VsPreviousVerdict = domain.ChangeVerdict(verdict)
	w.WeekStart, w.WeekEnd = domain.Date(w.WeekStart), domain.Date(w.WeekEnd)
	return &w, nil
}

func (r *SummaryRepo) UpsertWeekly(ctx context.Context, w *domain.WeeklySummary) error {
	id := w.ID
	if id == "" {
		id = uuid.New().String()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO kpi_weekly_summaries (`+weeklyColumns+`)
		VALUES (`+placeholders(25)+`)
		ON CONFLICT (business_id, kpi_code, week_start_date) DO UPDATE SET
			week_end_date = EXCLUDED.week_end_date,
			week_number = EXCLUDED.week_number,
			year = EXCLUDED.year,
			week_label = EXCLUDED.week_label,
			unit = EXCLUDED.unit,
			aggregation_method = EXCLUDED.aggregation_method,
			total_days = EXCLUDED.total_days,
			completed_days = EXCLUDED.completed_days,
			actual_value = EXCLUDED.actual_value,
			has_target = EXCLUDED.has_target,
			planned_value = EXCLUDED.planned_value,
			achievement_percentage = EXCLUDED.achievement_percentage,
			variance = EXCLUDED.variance,
			target_met = EXCLUDED.target_met,
			status = EXCLUDED.status,
			is_week_complete = EXCLUDED.is_week_complete,
			previous_week_id = EXCLUDED.previous_week_id,
			vs_previous_week_change = EXCLUDED.vs_previous_week_change,
			vs_previous_week_status = EXCLUDED.vs_previous_week_status,
			calculated_at = EXCLUDED.calculated_at,
			calculated_by_job_id = EXCLUDED.calculated_by_job_id
		RETURNING id
	`, id, w.TenantID, w.MetricCode, domain.Date(w.WeekStart), domain.Date(w.WeekEnd), w.WeekNumber, w.Year,
		w.Label, w.Unit, w.Aggregation.String(), w.TotalDays, w.CompletedDays, w.ActualValue,
		w.HasTarget, w.PlannedValue, w.Achievement, w.Variance, w.TargetMet, string(w.Status),
		w.IsComplete, w.PreviousWeekID, w.VsPreviousChange, string(w.VsPreviousVerdict),
		w.CalculatedAt, w.CalculatedByJobID,
	).Scan(&w.ID)
	if err != nil {
		return queryErr("upsert weekly summary", err)
	}
	return nil
}

func (r *SummaryRepo) GetWeekly(ctx context.Context, tenantID, metricCode string, weekStart time.Time) (*domain.WeeklySummary, error) {
	w, err := scanWeekly(r.db.QueryRowContext(ctx, `
		SELECT `+weeklyColumns+`
		FROM kpi_weekly_summaries
		WHERE business_id = $1 AND kpi_code = $2 AND week_start_date = $3
	`, tenantID, metricCode, domain.Date(weekStart)))
	if err == sql.ErrNoRows {
		return nil, rollup.ErrSummaryNotFound
	}
	if err != nil {
		return nil, queryErr("get weekly summary", err)
	}
	return w, nil
}

func (r *SummaryRepo) FindLatestWeeklyBefore(ctx context.Context, tenantID, metricCode string, weekStart time.Time) (*domain.WeeklySummary, error) {
	w, err := scanWeekly(r.db.QueryRowContext(ctx, `
		SELECT `+weeklyColumns+`
		FROM kpi_weekly_summaries
		WHERE business_id = $1 AND kpi_code = $2 AND week_start_date < $3
		ORDER BY week_start_date DESC
		LIMIT 1
	`, tenantID, metricCode, domain.Date(weekStart)))
	if err == sql.ErrNoRows {
		return nil, rollup.ErrSummaryNotFound
	}
	if err != nil {
		return nil, queryErr("find previous weekly summary", err)
	}
	return w, nil
}

func (r *SummaryRepo) ListWeeklyOverlapping(ctx context.Context, tenantID, metricCode string, from, to time.Time) ([]domain.WeeklySummary, error) {
	return r.listWeekly(ctx, "list overlapping weekly summaries", `
		SELECT `+weeklyColumns+`
		FROM kpi_weekly_summaries
		WHERE business_id = $1 AND kpi_code = $2
		  AND (week_start_date BETWEEN $3 AND $4 OR week_end_date BETWEEN $3 AND $4)
		ORDER BY week_start_date
	`, tenantID, metricCode, domain.Date(from), domain.Date(to))
}

func (r *SummaryRepo) RecentWeekly(ctx context.Context, tenantID, metricCode string, limit int) ([]domain.WeeklySummary, error) {
	return r.listWeekly(ctx, "recent weekly summaries", `
		SELECT `+weeklyColumns+`
		FROM kpi_weekly_summaries
		WHERE business_id = $1 AND kpi_code = $2
		ORDER BY week_start_date DESC
		LIMIT $3
	`, tenantID, metricCode, limit)
}

func (r *SummaryRepo) listWeekly(ctx context.Context, op, query string, args ...interface{}) ([]domain.WeeklySummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryErr(op, err)
	}
	defer rows.Close()

	var out []domain.WeeklySummary
	for rows.Next() {
		w, err := scanWeekly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan weekly summary: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr(op, err)
	}
	return out, nil
}

const monthlyColumns = `id, business_id, kpi_code, year, month_number, month_start_date, month_end_date,
	month_label, quarter, unit, aggregation_method, source, total_days, completed_days,
	actual_value, has_target, planned_value, achievement_percentage, variance, target_met,
	status, is_month_complete, previous_month_id, same_month_last_year_id,
	vs_previous_month_change, vs_previous_month_status, vs_last_year_change,
	vs_last_year_status, seasonality_index, calculated_at, calculated_by_job_id,
	completed_weeks, weekly_average, weekly_median, weekly_std_deviation, weekly_min, weekly_max,
	best_week_start, best_week_value, worst_week_start, worst_week_value,
	green_weeks_count, yellow_weeks_count, red_weeks_count, weeks_on_target_percentage,
	weekly_breakdown`

func scanMonthly(s scanner) (*domain.MonthlySummary, error) {
	var (
		m                        domain.MonthlySummary
		method, source, status   string
		prevVerdict, lastVerdict string
		breakdown                []byte
	)
	err := s.Scan(
		&m.ID, &m.TenantID, &m.MetricCode, &m.Year, &m.Month, &m.MonthStart, &m.MonthEnd,
		&m.Label, &m.Quarter, &m.Unit, &method, &source, &m.TotalDays, &m.CompletedDays,
		&m.ActualValue, &m.HasTarget, &m.PlannedValue, &m.Achievement, &m.Variance, &m.TargetMet,
		&status, &m.IsComplete, &m.PreviousMonthID, &m.SameMonthLastYearID,
		&m.VsPreviousChange, &prevVerdict, &m.VsLastYearChange,
		&lastVerdict, &m.SeasonalityIndex, &m.CalculatedAt, &m.CalculatedByJobID,
		&m.CompletedWeeks, &m.WeeklyAverage, &m.WeeklyMedian, &m.WeeklyStdDev, &m.WeeklyMin, &m.WeeklyMax,
		&m.BestWeekStart, &m.BestWeekValue, &m.WorstWeekStart, &m.WorstWeekValue,
		&m.GreenWeeks, &m.YellowWeeks, &m.RedWeeks, &m.WeeksOnTargetPct,
		&breakdown,
	)
	if err != nil {
		return nil, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &m.WeeklyBreakdown); err != nil {
			return nil, fmt.Errorf("decode weekly breakdown: %w", err)
		}
	}
	m.Aggregation, _ = domain.ParseAggregationMethod(method)
	m.Source = domain.RollupSource(source)
	m.Status = domain.Status(status)
	m.VsPreviousVerdict = domain.ChangeVerdict(prevVerdict)
	m.VsLastYearVerdict = domain.ChangeVerdict(lastVerdict)
	m.MonthStart, m.MonthEnd = domain.Date(m.MonthStart), domain.Date(m.MonthEnd)
	for _, d := range []*time.Time{m.BestWeekStart, m.WorstWeekStart} {
		if d != nil {
			*d = domain.Date(*d)
		}
	}
	return &m, nil
}

func (r *SummaryRepo) UpsertMonthly(ctx context.Context, m *domain.MonthlySummary) error {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	breakdown := m.WeeklyBreakdown
	if breakdown == nil {
		breakdown = []domain.WeekBreakdown{}
	}
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("encode weekly breakdown: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO kpi_monthly_summaries (`+monthlyColumns+`)
		VALUES (`+placeholders(46)+`)
		ON CONFLICT (business_id, kpi_code, year, month_number) DO UPDATE SET
			month_start_date = EXCLUDED.month_start_date,
			month_end_date = EXCLUDED.month_end_date,
			month_label = EXCLUDED.month_label,
			quarter = EXCLUDED.quarter,
			unit = EXCLUDED.unit,
			aggregation_method = EXCLUDED.aggregation_method,
			source = EXCLUDED.source,
			total_days = EXCLUDED.total_days,
			completed_days = EXCLUDED.completed_days,
			actual_value = EXCLUDED.actual_value,
			has_target = EXCLUDED.has_target,
			planned_value = EXCLUDED.planned_value,
			achievement_percentage = EXCLUDED.achievement_percentage,
			variance = EXCLUDED.variance,
			target_met = EXCLUDED.target_met,
			status = EXCLUDED.status,
			is_month_complete = EXCLUDED.is_month_complete,
			previous_month_id = EXCLUDED.previous_month_id,
			same_month_last_year_id = EXCLUDED.same_month_last_year_id,
			vs_previous_month_change = EXCLUDED.vs_previous_month_change,
			vs_previous_month_status = EXCLUDED.vs_previous_month_status,
			vs_last_year_change = EXCLUDED.vs_last_year_change,
			vs_last_year_status = EXCLUDED.vs_last_year_status,
			seasonality_index = EXCLUDED.seasonality_index,
			calculated_at = EXCLUDED.calculated_at,
			calculated_by_job_id = EXCLUDED.calculated_by_job_id,
			completed_weeks = EXCLUDED.completed_weeks,
			weekly_average = EXCLUDED.weekly_average,
			weekly_median = EXCLUDED.weekly_median,
			weekly_std_deviation = EXCLUDED.weekly_std_deviation,
			weekly_min = EXCLUDED.weekly_min,
			weekly_max = EXCLUDED.weekly_max,
			best_week_start = EXCLUDED.best_week_start,
			best_week_value = EXCLUDED.best_week_value,
			worst_week_start = EXCLUDED.worst_week_start,
			worst_week_value = EXCLUDED.worst_week_value,
			green_weeks_count = EXCLUDED.green_weeks_count,
			yellow_weeks_count = EXCLUDED.yellow_weeks_count,
			red_weeks_count = EXCLUDED.red_weeks_count,
			weeks_on_target_percentage = EXCLUDED.weeks_on_target_percentage,
			weekly_breakdown = EXCLUDED.weekly_breakdown
		RETURNING id
	`, id, m.TenantID, m.MetricCode, m.Year, m.Month, domain.Date(m.MonthStart), domain.Date(m.MonthEnd),
		m.Label, m.Quarter, m.Unit, m.Aggregation.String(), string(m.Source), m.TotalDays, m.CompletedDays,
		m.ActualValue, m.HasTarget, m.PlannedValue, m.Achievement, m.Variance, m.TargetMet,
		string(m.Status), m.IsComplete, m.PreviousMonthID, m.SameMonthLastYearID,
		m.VsPreviousChange, string(m.VsPreviousVerdict), m.VsLastYearChange,
		string(m.VsLastYearVerdict), m.SeasonalityIndex, m.CalculatedAt, m.CalculatedByJobID,
		m.CompletedWeeks, m.WeeklyAverage, m.WeeklyMedian, m.WeeklyStdDev, m.WeeklyMin, m.WeeklyMax,
		dateOrNil(m.BestWeekStart), m.BestWeekValue, dateOrNil(m.WorstWeekStart), m.WorstWeekValue,
		m.GreenWeeks, m.YellowWeeks, m.RedWeeks, m.WeeksOnTargetPct,
		string(breakdownJSON),
	).Scan(&m.ID)
	if err != nil {
		return queryErr("upsert monthly summary", err)
	}
	return nil
}

func (r *SummaryRepo) GetMonthly(ctx context.Context, tenantID, metricCode string, year, month int) (*domain.MonthlySummary, error) {
	m, err := scanMonthly(r.db.QueryRowContext(ctx, `
		SELECT `+monthlyColumns+`
		FROM kpi_monthly_summaries
		WHERE business_id = $1 AND kpi_code = $2 AND year = $3 AND month_number = $4
	`, tenantID, metricCode, year, month))
	if err == sql.ErrNoRows {
		return nil, rollup.ErrSummaryNotFound
	}
	if err != nil {
		return nil, queryErr("get monthly summary", err)
	}
	return m, nil
}

func (r *SummaryRepo) FindLatestMonthlyBefore(ctx context.Context, tenantID, metricCode string, year, month int) (*domain.MonthlySummary, error) {
	m, err := scanMonthly(r.db.QueryRowContext(ctx, `
		SELECT `+monthlyColumns+`
		FROM kpi_monthly_summaries
		WHERE business_id = $1 AND kpi_code = $2
		  AND (year < $3 OR (year = $3 AND month_number < $4))
		ORDER BY year DESC, month_number DESC
		LIMIT 1
	`, tenantID, metricCode, year, month))
	if err == sql.ErrNoRows {
		return nil, rollup.ErrSummaryNotFound
	}
	if err != nil {
		return nil, queryErr("find previous monthly summary", err)
	}
	return m, nil
}

// ListMonthly returns the monthly summaries of a tenant for one month across
// all metrics, ordered by metric code. Used by the snapshot archiver.
func (r *SummaryRepo) ListMonthly(ctx context.Context, tenantID string, year, month int) ([]domain.MonthlySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+monthlyColumns+`
		FROM kpi_monthly_summaries
		WHERE business_id = $1 AND year = $2 AND month_number = $3
		ORDER BY kpi_code
	`, tenantID, year, month)
	if err != nil {
		return nil, queryErr("list monthly summaries", err)
	}
	defer rows.Close()

	var out []domain.MonthlySummary
	for rows.Next() {
		m, err := scanMonthly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monthly summary: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("list monthly summaries", err)
	}
	return out, nil
}

var (
	_ rollup.SummaryStore     = (*SummaryRepo)(nil)
	_ rollup.TenantDirectory  = (*TenantRepo)(nil)
	_ rollup.MetricCatalog    = (*CatalogRepo)(nil)
	_ rollup.KPIConfiguration = (*KPIConfigRepo)(nil)
	_ rollup.PlanSource       = (*PlanRepo)(nil)
	_ rollup.DailyLedger      = (*LedgerRepo)(nil)
)
