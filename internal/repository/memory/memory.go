// Package memory provides in-memory implementations of the rollup
// collaborators. It backs unit tests and kpictl dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

type planKey struct {
	tenant, metric string
	kind           domain.PeriodKind
	start          string
}

// Store is a concurrency-safe in-memory implementation of every rollup
// collaborator interface.
type Store struct {
	mu       sync.RWMutex
	tenants  map[string]bool
	metrics  map[string]domain.MetricDefinition
	selected map[string][]string
	daily    []domain.DailyMeasurement
	plans    map[planKey]float64
	weekly   map[string]*domain.WeeklySummary
	monthly  map[string]*domain.MonthlySummary

	// Upserts counts summary writes, useful for asserting idempotence.
	Upserts int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tenants:  make(map[string]bool),
		metrics:  make(map[string]domain.MetricDefinition),
		selected: make(map[string][]string),
		plans:    make(map[planKey]float64),
		weekly:   make(map[string]*domain.WeeklySummary),
		monthly:  make(map[string]*domain.MonthlySummary),
	}
}

// AddTenant registers a tenant.
func (s *Store) AddTenant(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[id] = true
}

// AddMetric registers a catalog entry.
func (s *Store) AddMetric(m domain.MetricDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[m.Code] = m
}

// SelectMetrics stores the KPI configuration of a tenant.
func (s *Store) SelectMetrics(tenantID string, codes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[tenantID] = append([]string(nil), codes...)
}

// AddDaily appends ledger rows.
func (s *Store) AddDaily(rows ...domain.DailyMeasurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		r.Date = domain.Date(r.Date)
		s.daily = append(s.daily, r)
	}
}

// SetPlan sets the target for the period starting at start.
func (s *Store) SetPlan(tenantID, metricCode string, kind domain.PeriodKind, start time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[planKey{tenantID, metricCode, kind, domain.Date(start).Format(domain.DateLayout)}] = value
}

// PutWeekly stores a summary as-is, bypassing the engine.
func (s *Store) PutWeekly(w domain.WeeklySummary) {
	_ = s.UpsertWeekly(context.Background(), &w)
}

// TenantExists implements rollup.TenantDirectory.
func (s *Store) TenantExists(_ context.Context, tenantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[tenantID], nil
}

// Metric implements rollup.MetricCatalog.
func (s *Store) Metric(_ context.Context, code string) (*domain.MetricDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[code]
	if !ok {
		return nil, rollup.ErrUnknownMetric
	}
	return &m, nil
}

// SelectedMetrics implements rollup.KPIConfiguration.
func (s *Store) SelectedMetrics(_ context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes, ok := s.selected[tenantID]
	if !ok {
		return nil, rollup.ErrMissingConfiguration
	}
	return append([]string(nil), codes...), nil
}

// DailyValues implements rollup.DailyLedger.
func (s *Store) DailyValues(_ context.Context, tenantID, metricCode string, from, to time.Time) ([]domain.DailyMeasurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from, to = domain.Date(from), domain.Date(to)
	var out []domain.DailyMeasurement
	for _, r := range s.daily {
		if r.TenantID != tenantID || r.MetricCode != metricCode {
			continue
		}
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// EarliestDate implements rollup.DailyLedger.
func (s *Store) EarliestDate(_ context.Context, tenantID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var earliest time.Time
	found := false
	for _, r := range s.daily {
		if r.TenantID != tenantID {
			continue
		}
		if !found || r.Date.Before(earliest) {
			earliest = r.Date
			found = true
		}
	}
	return earliest, found, nil
}

// PlannedValue implements rollup.PlanSource.
func (s *Store) PlannedValue(_ context.Context, tenantID, metricCode string, p domain.Period) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.plans[planKey{tenantID, metricCode, p.Kind, domain.Date(p.Start).Format(domain.DateLayout)}]
	return v, ok, nil
}

func weeklyKey(tenantID, metricCode string, weekStart time.Time) string {
	return tenantID + "/" + metricCode + "/" + domain.Date(weekStart).Format(domain.DateLayout)
}

func monthlyKey(tenantID, metricCode string, year, month int) string {
	return tenantID + "/" + metricCode + "/" + domain.YearMonth{Year: year, Month: month}.String()
}

// UpsertWeekly implements rollup.SummaryStore.
func (s *Store) UpsertWeekly(_ context.Context, w *domain.WeeklySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := weeklyKey(w.TenantID, w.MetricCode, w.WeekStart)
	if existing, ok := s.weekly[key]; ok {
		w.ID = existing.ID
	} else if w.ID == "" {
		w.ID = uuid.New().String()
	}
	cp := *w
	s.weekly[key] = &cp
	s.Upserts++
	return nil
}

// GetWeekly implements rollup.SummaryStore.
func (s *Store) GetWeekly(_ context.Context, tenantID, metricCode string, weekStart time.Time) (*domain.WeeklySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.weekly[weeklyKey(tenantID, metricCode, weekStart)]
	if !ok {
		return nil, rollup.ErrSummaryNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *Store) weeklyFor(tenantID, metricCode string) []domain.WeeklySummary {
	var out []domain.WeeklySummary
	for _, w := range s.weekly {
		if w.TenantID == tenantID && w.MetricCode == metricCode {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

// FindLatestWeeklyBefore implements rollup.SummaryStore.
func (s *Store) FindLatestWeeklyBefore(_ context.Context, tenantID, metricCode string, weekStart time.Time) (*domain.WeeklySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.weeklyFor(tenantID, metricCode)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].WeekStart.Before(weekStart) {
			return &all[i], nil
		}
	}
	return nil, rollup.ErrSummaryNotFound
}

// ListWeeklyOverlapping implements rollup.SummaryStore.
func (s *Store) ListWeeklyOverlapping(_ context.Context, tenantID, metricCode string, from, to time.Time) ([]domain.WeeklySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inRange := func(t time.Time) bool { return !t.Before(from) && !t.After(to) }
	var out []domain.WeeklySummary
	for _, w := range s.weeklyFor(tenantID, metricCode) {
		if inRange(w.WeekStart) || inRange(w.WeekEnd) {
			out = append(out, w)
		}
	}
	return out, nil
}

// RecentWeekly implements rollup.SummaryStore.
func (s *Store) RecentWeekly(_ context.Context, tenantID, metricCode string, limit int) ([]domain.WeeklySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.weeklyFor(tenantID, metricCode)
	var out []domain.WeeklySummary
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// UpsertMonthly implements rollup.SummaryStore.
func (s *Store) UpsertMonthly(_ context.Context, m *domain.MonthlySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := monthlyKey(m.TenantID, m.MetricCode, m.Year, m.Month)
	if existing, ok := s.monthly[key]; ok {
		m.ID = existing.ID
	} else if m.ID == "" {
		m.ID = uuid.New().String()
	}
	cp := *m
	s.monthly[key] = &cp
	s.Upserts++
	return nil
}

// GetMonthly implements rollup.SummaryStore.
func (s *Store) GetMonthly(_ context.Context, tenantID, metricCode string, year, month int) (*domain.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monthly[monthlyKey(tenantID, metricCode, year, month)]
	if !ok {
		return nil, rollup.ErrSummaryNotFound
	}
	cp := *m
	return &cp, nil
}

// FindLatestMonthlyBefore implements rollup.SummaryStore.
func (s *Store) FindLatestMonthlyBefore(_ context.Context, tenantID, metricCode string, year, month int) (*domain.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.MonthlySummary
	target := year*12 + month
	for _, m := range s.monthly {
		if m.TenantID != tenantID || m.MetricCode != metricCode {
			continue
		}
		idx := m.Year*12 + m.Month
		if idx >= target {
			continue
		}
		if best == nil || idx > best.Year*12+best.Month {
			best = m
		}
	}
	if best == nil {
		return nil, rollup.ErrSummaryNotFound
	}
	cp := *best
	return &cp, nil
}

// ListMonthly returns the monthly summaries of one month across all metrics
// of a tenant, ordered by metric code.
func (s *Store) ListMonthly(_ context.Context, tenantID string, year, month int) ([]domain.MonthlySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MonthlySummary
	for _, m := range s.monthly {
		if m.TenantID == tenantID && m.Year == year && m.Month == month {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricCode < out[j].MetricCode })
	return out, nil
}

// ConfiguredTenants lists every tenant with a KPI selection, sorted.
func (s *Store) ConfiguredTenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ rollup.TenantDirectory  = (*Store)(nil)
	_ rollup.MetricCatalog    = (*Store)(nil)
	_ rollup.DailyLedger      = (*Store)(nil)
	_ rollup.KPIConfiguration = (*Store)(nil)
	_ rollup.PlanSource       = (*Store)(nil)
	_ rollup.SummaryStore     = (*Store)(nil)
)
