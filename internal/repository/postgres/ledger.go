package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
)

// LedgerRepo implements rollup.DailyLedger against kpi_daily_actuals.
type LedgerRepo struct{ db *sql.DB }

// NewLedgerRepo creates a Postgres-backed daily ledger reader.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

func (r *LedgerRepo) DailyValues(ctx context.Context, tenantID, metricCode string, from, to time.Time) ([]domain.DailyMeasurement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, actual_value
		FROM kpi_daily_actuals
		WHERE business_id = $1 AND kpi_code = $2 AND date BETWEEN $3 AND $4
		ORDER BY date, id
	`, tenantID, metricCode, domain.Date(from), domain.Date(to))
	if err != nil {
		return nil, queryErr("daily values", err)
	}
	defer rows.Close()

	var out []domain.DailyMeasurement
	for rows.Next() {
		m := domain.DailyMeasurement{TenantID: tenantID, MetricCode: metricCode}
		if err := rows.Scan(&m.Date, &m.Value); err != nil {
			return nil, fmt.Errorf("scan daily value: %w", err)
		}
		m.Date = domain.Date(m.Date)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("daily values", err)
	}
	return out, nil
}

func (r *LedgerRepo) EarliestDate(ctx context.Context, tenantID string) (time.Time, bool, error) {
	var earliest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(date) FROM kpi_daily_actuals WHERE business_id = $1`, tenantID,
	).Scan(&earliest)
	if err != nil {
		return time.Time{}, false, queryErr("earliest date", err)
	}
	if !earliest.Valid {
		return time.Time{}, false, nil
	}
	return domain.Date(earliest.Time), true, nil
}
