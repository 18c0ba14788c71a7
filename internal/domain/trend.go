package domain

// TrendDirection classifies a series of weekly values.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
	TrendVolatile  TrendDirection = "volatile"
)

// TrendPoint is one week of the analyzed series.
type TrendPoint struct {
	WeekStart   string  `json:"week_start"`
	Label       string  `json:"week_label"`
	Actual      float64 `json:"actual_value"`
	Achievement float64 `json:"achievement_percentage"`
	Status      Status  `json:"status"`
}

// TrendReport is computed on demand and never persisted.
type TrendReport struct {
	TenantID               string         `json:"tenant_id"`
	MetricCode             string         `json:"metric_code"`
	WeeksAnalyzed          int            `json:"weeks_analyzed"`
	Direction              TrendDirection `json:"trend_direction"`
	TrendPercentage        float64        `json:"trend_percentage"`
	Mean                   float64        `json:"average_value"`
	StdDeviation           float64        `json:"std_deviation"`
	CoefficientOfVariation float64        `json:"coefficient_of_variation"`
	Min                    float64        `json:"min_value"`
	Max                    float64        `json:"max_value"`
	Weeks                  []TrendPoint   `json:"weekly_data"`
}
