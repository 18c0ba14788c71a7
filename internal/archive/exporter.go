// Package archive writes monthly summary snapshots to object storage so
// finance can read closed months without touching the primary database.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/pkg/logger"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

// Sink stores one object.
type Sink interface {
	Put(ctx context.Context, key string, body []byte) error
}

// MonthlyLister reads every monthly summary of a tenant for one month.
type MonthlyLister interface {
	ListMonthly(ctx context.Context, tenantID string, year, month int) ([]domain.MonthlySummary, error)
}

// Snapshot is the archived document.
type Snapshot struct {
	TenantID    string                  `json:"tenant_id"`
	Year        int                     `json:"year"`
	Month       int                     `json:"month"`
	GeneratedAt time.Time               `json:"generated_at"`
	JobID       string                  `json:"job_id,omitempty"`
	Summaries   []domain.MonthlySummary `json:"summaries"`
}

// Exporter renders snapshots and hands them to a Sink.
type Exporter struct {
	lister MonthlyLister
	sink   Sink
	prefix string
	now    func() time.Time
}

// NewExporter creates an exporter writing under prefix.
func NewExporter(lister MonthlyLister, sink Sink, prefix string) *Exporter {
	return &Exporter{lister: lister, sink: sink, prefix: prefix, now: time.Now}
}

// Key returns the object key of a tenant's month.
func (e *Exporter) Key(tenantID string, year, month int) string {
	return path.Join(e.prefix, tenantID, domain.YearMonth{Year: year, Month: month}.String()+".json")
}

// ExportMonth writes the snapshot for one month and returns its key. A month
// without summaries is skipped and returns an empty key.
func (e *Exporter) ExportMonth(ctx context.Context, tenantID string, year, month int) (string, error) {
	if !domain.ValidMonth(month) {
		return "", fmt.Errorf("%w: month %d", rollup.ErrInvalidPeriod, month)
	}
	summaries, err := e.lister.ListMonthly(ctx, tenantID, year, month)
	if err != nil {
		return "", fmt.Errorf("list monthly summaries: %w", err)
	}
	if len(summaries) == 0 {
		return "", nil
	}

	body, err := json.MarshalIndent(Snapshot{
		TenantID:    tenantID,
		Year:        year,
		Month:       month,
		GeneratedAt: e.now().UTC(),
		JobID:       rollup.JobIDFrom(ctx),
		Summaries:   summaries,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := e.Key(tenantID, year, month)
	if err := e.sink.Put(ctx, key, body); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", key, err)
	}
	logger.Info("monthly snapshot archived", "tenant", tenantID, "key", key, "metrics", len(summaries), "bytes", len(body))
	return key, nil
}
