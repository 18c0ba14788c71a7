package rollup

import "errors"

// Sentinel errors for the rollup layer. All of them are input errors and are
// not worth retrying.
var (
	ErrUnknownTenant        = errors.New("unknown tenant")
	ErrUnknownMetric        = errors.New("unknown metric")
	ErrMissingConfiguration = errors.New("tenant has no KPI configuration")
	ErrInsufficientHistory  = errors.New("no weekly summaries available")
	ErrSummaryNotFound      = errors.New("summary not found")
	ErrInvalidPeriod        = errors.New("invalid period")
)
