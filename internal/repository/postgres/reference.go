package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/pkg/logger"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/lib/pq"
)

// TenantRepo implements rollup.TenantDirectory against the businesses table.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant directory.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

func (r *TenantRepo) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM businesses WHERE id = $1)`, tenantID,
	).Scan(&exists)
	if invalidTenantID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tenant exists: %w", err)
	}
	return exists, nil
}

// CatalogRepo implements rollup.MetricCatalog against kpi_templates.
type CatalogRepo struct{ db *sql.DB }

// NewCatalogRepo creates a Postgres-backed metric catalog.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

func (r *CatalogRepo) Metric(ctx context.Context, code string) (*domain.MetricDefinition, error) {
	var (
		m      domain.MetricDefinition
		method string
		bands  []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT kpi_code, default_unit, aggregation_method, status_bands
		FROM kpi_templates
		WHERE kpi_code = $1
	`, code).Scan(&m.Code, &m.Unit, &method, &bands)
	if err == sql.ErrNoRows {
		return nil, rollup.ErrUnknownMetric
	}
	if err != nil {
		return nil, fmt.Errorf("get metric: %w", err)
	}
	// Unknown methods fall back to sum in the engine.
	m.Aggregation, _ = domain.ParseAggregationMethod(method)
	if len(bands) > 0 {
		if err := json.Unmarshal(bands, &m.Bands); err != nil {
			return nil, fmt.Errorf("decode status bands for %s: %w", code, err)
		}
		if err := m.Bands.Validate(); err != nil {
			logger.Warn("ignoring invalid catalog status bands", "metric", code, "error", err)
			m.Bands = nil
		}
	}
	return &m, nil
}

// KPIConfigRepo implements rollup.KPIConfiguration against
// business_kpi_configurations.
type KPIConfigRepo struct{ db *sql.DB }

// NewKPIConfigRepo creates a Postgres-backed KPI configuration reader.
func NewKPIConfigRepo(db *sql.DB) *KPIConfigRepo { return &KPIConfigRepo{db: db} }

func (r *KPIConfigRepo) SelectedMetrics(ctx context.Context, tenantID string) ([]string, error) {
	var codes pq.StringArray
	err := r.db.QueryRowContext(ctx, `
		SELECT selected_kpis
		FROM business_kpi_configurations
		WHERE business_id = $1
	`, tenantID).Scan(&codes)
	if err == sql.ErrNoRows {
		return nil, rollup.ErrMissingConfiguration
	}
	if err != nil {
		return nil, queryErr("selected metrics", err)
	}
	return []string(codes), nil
}

// ConfiguredTenants lists every tenant with a KPI configuration row.
func (r *KPIConfigRepo) ConfiguredTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT business_id::text
		FROM business_kpi_configurations
		ORDER BY business_id
	`)
	if err != nil {
		return nil, fmt.Errorf("configured tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PlanRepo implements rollup.PlanSource against kpi_targets.
type PlanRepo struct{ db *sql.DB }

// NewPlanRepo creates a Postgres-backed plan source.
func NewPlanRepo(db *sql.DB) *PlanRepo { return &PlanRepo{db: db} }

func (r *PlanRepo) PlannedValue(ctx context.Context, tenantID, metricCode string, p domain.Period) (float64, bool, error) {
	var v float64
	err := r.db.QueryRowContext(ctx, `
		SELECT planned_value
		FROM kpi_targets
		WHERE business_id = $1 AND kpi_code = $2 AND period_type = $3 AND period_start = $4
	`, tenantID, metricCode, string(p.Kind), p.Start).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, queryErr("planned value", err)
	}
	return v, true, nil
}
