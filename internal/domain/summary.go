package domain

import "time"

// DailyMeasurement is one row of the daily ledger.
type DailyMeasurement struct {
	TenantID   string    `json:"tenant_id" db:"business_id"`
	MetricCode string    `json:"metric_code" db:"kpi_code"`
	Date       time.Time `json:"date" db:"date"`
	Value      float64   `json:"value" db:"actual_value"`
}

// WeeklySummary is the rollup of one ISO week for a tenant and metric.
// Identity is (TenantID, MetricCode, WeekStart).
type WeeklySummary struct {
	ID                string            `json:"id" db:"id"`
	TenantID          string            `json:"tenant_id" db:"business_id"`
	MetricCode        string            `json:"metric_code" db:"kpi_code"`
	WeekStart         time.Time         `json:"week_start_date" db:"week_start_date"`
	WeekEnd           time.Time         `json:"week_end_date" db:"week_end_date"`
	WeekNumber        int               `json:"week_number" db:"week_number"`
	Year              int               `json:"year" db:"year"`
	Label             string            `json:"week_label" db:"week_label"`
	Unit              string            `json:"unit" db:"unit"`
	Aggregation       AggregationMethod `json:"aggregation_method" db:"aggregation_method"`
	TotalDays         int               `json:"total_days" db:"total_days"`
	CompletedDays     int               `json:"completed_days" db:"completed_days"`
	ActualValue       float64           `json:"actual_value" db:"actual_value"`
	HasTarget         bool              `json:"has_target" db:"has_target"`
	PlannedValue      float64           `json:"planned_value" db:"planned_value"`
	Achievement       float64           `json:"achievement_percentage" db:"achievement_percentage"`
	Variance          float64           `json:"variance" db:"variance"`
	TargetMet         bool              `json:"target_met" db:"target_met"`
	Status            Status            `json:"status" db:"status"`
	IsComplete        bool              `json:"is_week_complete" db:"is_week_complete"`
	PreviousWeekID    *string           `json:"previous_week_id" db:"previous_week_id"`
	VsPreviousChange  float64           `json:"vs_previous_week_change" db:"vs_previous_week_change"`
	VsPreviousVerdict ChangeVerdict     `json:"vs_previous_week_status,omitempty" db:"vs_previous_week_status"`
	CalculatedAt      time.Time         `json:"calculated_at" db:"calculated_at"`
	CalculatedByJobID string            `json:"calculated_by_job_id,omitempty" db:"calculated_by_job_id"`
}

// MonthlySummary is the rollup of one calendar month for a tenant and metric.
// Identity is (TenantID, MetricCode, Year, Month).
type MonthlySummary struct {
	ID                  string            `json:"id" db:"id"`
	TenantID            string            `json:"tenant_id" db:"business_id"`
	MetricCode          string            `json:"metric_code" db:"kpi_code"`
	Year                int               `json:"year" db:"year"`
	Month               int               `json:"month" db:"month_number"`
	MonthStart          time.Time         `json:"month_start_date" db:"month_start_date"`
	MonthEnd            time.Time         `json:"month_end_date" db:"month_end_date"`
	Label               string            `json:"month_label" db:"month_label"`
	Quarter             int               `json:"quarter" db:"quarter"`
	Unit                string            `json:"unit" db:"unit"`
	Aggregation         AggregationMethod `json:"aggregation_method" db:"aggregation_method"`
	Source              RollupSource      `json:"source" db:"source"`
	TotalDays           int               `json:"total_days" db:"total_days"`
	CompletedDays       int               `json:"completed_days" db:"completed_days"`
	ActualValue         float64           `json:"actual_value" db:"actual_value"`
	HasTarget           bool              `json:"has_target" db:"has_target"`
	PlannedValue        float64           `json:"planned_value" db:"planned_value"`
	Achievement         float64           `json:"achievement_percentage" db:"achievement_percentage"`
	Variance            float64           `json:"variance" db:"variance"`
	TargetMet           bool              `json:"target_met" db:"target_met"`
	Status              Status            `json:"status" db:"status"`
	IsComplete          bool              `json:"is_month_complete" db:"is_month_complete"`
	PreviousMonthID     *string           `json:"previous_month_id" db:"previous_month_id"`
	SameMonthLastYearID *string           `json:"same_month_last_year_id" db:"same_month_last_year_id"`
	VsPreviousChange    float64           `json:"vs_previous_month_change" db:"vs_previous_month_change"`
	VsPreviousVerdict   ChangeVerdict     `json:"vs_previous_month_status,omitempty" db:"vs_previous_month_status"`
	VsLastYearChange    float64           `json:"vs_last_year_change" db:"vs_last_year_change"`
	VsLastYearVerdict   ChangeVerdict     `json:"vs_last_year_status,omitempty" db:"vs_last_year_status"`
	SeasonalityIndex    float64           `json:"seasonality_index" db:"seasonality_index"`
	CalculatedAt        time.Time         `json:"calculated_at" db:"calculated_at"`
	CalculatedByJobID   string            `json:"calculated_by_job_id,omitempty" db:"calculated_by_job_id"`

	// Week-level statistics, filled only when the month is built from
	// weekly summaries. Weeks without data are left out.
	CompletedWeeks   int             `json:"completed_weeks" db:"completed_weeks"`
	WeeklyAverage    float64         `json:"weekly_average" db:"weekly_average"`
	WeeklyMedian     float64         `json:"weekly_median" db:"weekly_median"`
	WeeklyStdDev     float64         `json:"weekly_std_deviation" db:"weekly_std_deviation"`
	WeeklyMin        float64         `json:"weekly_min" db:"weekly_min"`
	WeeklyMax        float64         `json:"weekly_max" db:"weekly_max"`
	BestWeekStart    *time.Time      `json:"best_week_start,omitempty" db:"best_week_start"`
	BestWeekValue    float64         `json:"best_week_value" db:"best_week_value"`
	WorstWeekStart   *time.Time      `json:"worst_week_start,omitempty" db:"worst_week_start"`
	WorstWeekValue   float64         `json:"worst_week_value" db:"worst_week_value"`
	GreenWeeks       int             `json:"green_weeks_count" db:"green_weeks_count"`
	YellowWeeks      int             `json:"yellow_weeks_count" db:"yellow_weeks_count"`
	RedWeeks         int             `json:"red_weeks_count" db:"red_weeks_count"`
	WeeksOnTargetPct float64         `json:"weeks_on_target_percentage" db:"weeks_on_target_percentage"`
	WeeklyBreakdown  []WeekBreakdown `json:"weekly_breakdown" db:"weekly_breakdown"`
}

// WeekBreakdown is one week of a monthly summary's weekly_breakdown.
type WeekBreakdown struct {
	Start       string  `json:"start"`
	Plan        float64 `json:"plan"`
	Actual      float64 `json:"actual"`
	Achievement float64 `json:"achievement"`
	Status      Status  `json:"status"`
}

// RollupSource records which layer a monthly summary was built from.
type RollupSource string

const (
	SourceWeekly RollupSource = "weekly"
	SourceDaily  RollupSource = "daily"
	SourceNone   RollupSource = "none"
)

// Key returns the identity of the weekly summary as a stable string.
func (w *WeeklySummary) Key() string {
	return w.TenantID + "/" + w.MetricCode + "/" + w.WeekStart.Format(DateLayout)
}

// Key returns the identity of the monthly summary as a stable string.
func (m *MonthlySummary) Key() string {
	return m.TenantID + "/" + m.MetricCode + "/" + YearMonth{Year: m.Year, Month: m.Month}.String()
}
