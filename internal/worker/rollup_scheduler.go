package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ignite/kpi-rollup/internal/backfill"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/pkg/distlock"
)

// DefaultRollupInterval is how often every tenant is brought up to date.
const DefaultRollupInterval = 1 * time.Hour

// AutoAggregator backfills one tenant up to a date.
type AutoAggregator interface {
	AutoAggregate(ctx context.Context, tenantID string, upTo time.Time) (*backfill.AutoReport, error)
}

// TenantLister returns the tenants that have a KPI configuration.
type TenantLister interface {
	ConfiguredTenants(ctx context.Context) ([]string, error)
}

// MonthArchiver writes a closed month somewhere durable.
type MonthArchiver interface {
	ExportMonth(ctx context.Context, tenantID string, year, month int) (string, error)
}

// LockFactory hands out one lock per key.
type LockFactory interface {
	For(key string) distlock.DistLock
}

// CycleResult summarizes one scheduler pass.
type CycleResult struct {
	Processed int
	Skipped   int // lock held by another replica
	Failed    int
	Archived  int
}

// RollupScheduler periodically runs auto-aggregation for every configured
// tenant. A per-tenant distributed lock keeps replicas from rolling up the
// same tenant at once.
type RollupScheduler struct {
	runner   AutoAggregator
	tenants  TenantLister
	static   []string
	locks    LockFactory
	archiver MonthArchiver
	interval time.Duration
	now      func() time.Time
}

// SchedulerOption configures a RollupScheduler.
type SchedulerOption func(*RollupScheduler)

// WithTenants pins the tenant list instead of reading it from the database.
func WithTenants(ids ...string) SchedulerOption {
	return func(s *RollupScheduler) { s.static = ids }
}

// WithArchiver exports the open and the just-closed month after each tenant
// run.
func WithArchiver(a MonthArchiver) SchedulerOption {
	return func(s *RollupScheduler) { s.archiver = a }
}

// WithSchedulerClock overrides the clock used to pick the horizon.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *RollupScheduler) { s.now = now }
}

// NewRollupScheduler creates a scheduler. A non-positive interval falls back
// to DefaultRollupInterval.
func NewRollupScheduler(runner AutoAggregator, tenants TenantLister, locks LockFactory, interval time.Duration, opts ...SchedulerOption) *RollupScheduler {
	if interval <= 0 {
		interval = DefaultRollupInterval
	}
	s := &RollupScheduler{
		runner:   runner,
		tenants:  tenants,
		locks:    locks,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a cycle immediately and then on every tick. It blocks until ctx
// is cancelled.
func (s *RollupScheduler) Start(ctx context.Context) {
	log.Printf("[RollupScheduler] Starting (interval=%s)", s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[RollupScheduler] Stopping")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce processes every tenant once.
func (s *RollupScheduler) RunOnce(ctx context.Context) CycleResult {
	var res CycleResult
	start := time.Now()

	ids := s.static
	if len(ids) == 0 {
		var err error
		ids, err = s.tenants.ConfiguredTenants(ctx)
		if err != nil {
			log.Printf("[RollupScheduler] Error listing tenants: %v", err)
			return res
		}
	}

	upTo := domain.Date(s.now())
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		archived, err := s.runTenant(ctx, id, upTo)
		switch {
		case errors.Is(err, distlock.ErrNotAcquired):
			res.Skipped++
			log.Printf("[RollupScheduler] Tenant %s locked by another worker, skipping", id)
		case err != nil:
			res.Failed++
			log.Printf("[RollupScheduler] Tenant %s failed: %v", id, err)
		default:
			res.Processed++
			res.Archived += archived
		}
	}

	log.Printf("[RollupScheduler] Cycle done in %s: processed=%d skipped=%d failed=%d archived=%d",
		time.Since(start).Round(time.Millisecond), res.Processed, res.Skipped, res.Failed, res.Archived)
	return res
}

func (s *RollupScheduler) runTenant(ctx context.Context, tenantID string, upTo time.Time) (int, error) {
	archived := 0
	err := distlock.Run(ctx, s.locks.For(distlock.TenantRollupKey(tenantID)), func(ctx context.Context) error {
		report, err := s.runner.AutoAggregate(ctx, tenantID, upTo)
		if err != nil {
			return err
		}
		if report.NoData {
			return nil
		}
		log.Printf("[RollupScheduler] Tenant %s rolled up %s..%s (job=%s, weeks=%d, months=%d)",
			tenantID, report.From, report.To, report.JobID, len(report.Weekly), len(report.Monthly))

		if s.archiver == nil {
			return nil
		}
		current := domain.YearMonth{Year: upTo.Year(), Month: int(upTo.Month())}
		closed := previousMonth(upTo)
		for _, ym := range report.Months() {
			if ym != closed && ym != current {
				continue
			}
			key, err := s.archiver.ExportMonth(ctx, tenantID, ym.Year, ym.Month)
			if err != nil {
				// Archive failures do not fail the rollup.
				log.Printf("[RollupScheduler] Tenant %s archive %s failed: %v", tenantID, ym, err)
				continue
			}
			if key != "" {
				archived++
			}
		}
		return nil
	})
	return archived, err
}

func previousMonth(t time.Time) domain.YearMonth {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return domain.YearMonth{Year: first.Year(), Month: int(first.Month())}
}
