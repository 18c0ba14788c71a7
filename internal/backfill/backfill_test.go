package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/repository/memory"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	store *memory.Store
	orch  *Orchestrator
}

func newFixture(t *testing.T, selected ...string) *fixture {
	t.Helper()
	st := memory.New()
	st.AddTenant("T1")
	st.AddTenant("T2")
	st.AddMetric(domain.MetricDefinition{Code: "daily_revenue", Aggregation: domain.AggregateSum})
	st.AddMetric(domain.MetricDefinition{Code: "occupancy", Aggregation: domain.AggregateAverage})
	st.SelectMetrics("T1", selected...)

	engine := rollup.NewService(rollup.Deps{
		Tenants: st, Catalog: st, Ledger: st, Plans: st, Store: st,
	})
	var n int64
	orch := New(engine, st, WithConcurrency(2), WithJobIDs(func() string {
		return fmt.Sprintf("job-%d", atomic.AddInt64(&n, 1))
	}))
	return &fixture{store: st, orch: orch}
}

func (f *fixture) seed(metric, from string, values ...float64) {
	start := day(from)
	for i, v := range values {
		f.store.AddDaily(domain.DailyMeasurement{
			TenantID: "T1", MetricCode: metric, Date: start.AddDate(0, 0, i), Value: v,
		})
	}
}

func TestAggregateAllWeekly_PartialSuccess(t *testing.T) {
	f := newFixture(t, "daily_revenue", "ghost", "occupancy")
	f.seed("daily_revenue", "2024-01-01", 100, 100)
	ctx := context.Background()

	report, err := f.orch.AggregateAllWeekly(ctx, "T1", day("2024-01-03"))
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", report.Period)
	assert.Equal(t, "job-1", report.JobID)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	require.Len(t, report.Results, 3)

	assert.Equal(t, "daily_revenue", report.Results[0].MetricCode)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, "neutral", report.Results[0].Status)
	assert.Equal(t, "ghost", report.Results[1].MetricCode)
	assert.False(t, report.Results[1].Success)
	assert.Contains(t, report.Results[1].Error, "unknown metric")
	assert.Equal(t, "grey", report.Results[2].Status)

	w, err := f.store.GetWeekly(ctx, "T1", "daily_revenue", day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", w.CalculatedByJobID)
	assert.Equal(t, 200.0, w.ActualValue)
}

func TestAggregateAll_Preconditions(t *testing.T) {
	f := newFixture(t, "daily_revenue")
	ctx := context.Background()

	_, err := f.orch.AggregateAllWeekly(ctx, "T9", day("2024-01-01"))
	assert.True(t, errors.Is(err, rollup.ErrUnknownTenant))

	_, err = f.orch.AggregateAllMonthly(ctx, "T2", 2024, 1)
	assert.True(t, errors.Is(err, rollup.ErrMissingConfiguration))

	_, err = f.orch.AggregateAllMonthly(ctx, "T1", 2024, 0)
	assert.True(t, errors.Is(err, rollup.ErrInvalidPeriod))
}

func TestAggregateAllMonthly(t *testing.T) {
	f := newFixture(t, "daily_revenue", "occupancy")
	f.seed("daily_revenue", "2024-02-01", 10, 20)
	f.seed("occupancy", "2024-02-01", 50, 70)

	report, err := f.orch.AggregateAllMonthly(context.Background(), "T1", 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-02", report.Period)
	assert.Equal(t, 2, report.SuccessCount)

	occ, err := f.store.GetMonthly(context.Background(), "T1", "occupancy", 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, 60.0, occ.ActualValue)
	assert.Equal(t, domain.SourceDaily, occ.Source)
}

func TestRecalculate_OverwritesRange(t *testing.T) {
	f := newFixture(t, "daily_revenue")
	f.seed("daily_revenue", "2024-01-01", 100, 100, 100)
	ctx := context.Background()

	_, err := f.orch.Recalculate(ctx, "T1", "daily_revenue", day("2024-01-01"), day("2024-01-07"))
	require.NoError(t, err)

	// Late correction for a day already summarized.
	f.seed("daily_revenue", "2024-01-04", 50)

	report, err := f.orch.Recalculate(ctx, "T1", "daily_revenue", day("2024-01-03"), day("2024-02-10"))
	require.NoError(t, err)

	require.Len(t, report.Weekly, 6)
	assert.Equal(t, "2024-01-01", report.Weekly[0].Period)
	assert.Equal(t, "2024-02-05", report.Weekly[5].Period)
	require.Len(t, report.Monthly, 2)
	assert.Equal(t, "2024-01", report.Monthly[0].Period)
	assert.Equal(t, "2024-02", report.Monthly[1].Period)
	assert.Equal(t, 8, report.SuccessCount)
	assert.Equal(t, 0, report.ErrorCount)
	assert.Equal(t, "job-2", report.JobID)

	w, err := f.store.GetWeekly(ctx, "T1", "daily_revenue", day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 350.0, w.ActualValue)
	assert.Equal(t, 4, w.CompletedDays)

	jan, err := f.store.GetMonthly(ctx, "T1", "daily_revenue", 2024, 1)
	require.NoError(t, err)
	assert.Equal(t, 350.0, jan.ActualValue)
	assert.Equal(t, domain.SourceWeekly, jan.Source)
}

func TestRecalculate_Errors(t *testing.T) {
	f := newFixture(t, "daily_revenue")
	ctx := context.Background()

	_, err := f.orch.Recalculate(ctx, "T1", "daily_revenue", day("2024-02-01"), day("2024-01-01"))
	assert.True(t, errors.Is(err, rollup.ErrInvalidPeriod))

	_, err = f.orch.Recalculate(ctx, "T1", "ghost", day("2024-01-01"), day("2024-01-31"))
	assert.True(t, errors.Is(err, rollup.ErrUnknownMetric))

	_, err = f.orch.Recalculate(ctx, "T9", "daily_revenue", day("2024-01-01"), day("2024-01-31"))
	assert.True(t, errors.Is(err, rollup.ErrUnknownTenant))
}

func TestRecalculate_StopsOnCancel(t *testing.T) {
	f := newFixture(t, "daily_revenue")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orch.Recalculate(ctx, "T1", "daily_revenue", day("2024-01-01"), day("2024-03-31"))
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, report)
	assert.Empty(t, report.Weekly)
	assert.Equal(t, 0, f.store.Upserts)
}

func TestAutoAggregate_NoData(t *testing.T) {
	f := newFixture(t, "daily_revenue")

	report, err := f.orch.AutoAggregate(context.Background(), "T1", day("2024-02-14"))
	require.NoError(t, err)
	assert.True(t, report.NoData)
	assert.Empty(t, report.Weekly)
	assert.Equal(t, 0, f.store.Upserts)
}

func TestAutoAggregate_WalksFromEarliestMeasurement(t *testing.T) {
	f := newFixture(t, "daily_revenue", "occupancy")
	f.seed("occupancy", "2024-01-10", 40)
	f.seed("daily_revenue", "2024-02-12", 100)
	ctx := context.Background()

	report, err := f.orch.AutoAggregate(ctx, "T1", day("2024-02-14"))
	require.NoError(t, err)

	assert.Equal(t, "2024-01-08", report.From)
	require.Len(t, report.Weekly, 6)
	assert.Equal(t, "2024-01-08", report.Weekly[0].Period)
	assert.Equal(t, "2024-02-12", report.Weekly[5].Period)
	assert.Equal(t, []domain.YearMonth{{Year: 2024, Month: 1}, {Year: 2024, Month: 2}}, report.Months())

	// One job id across every nested batch.
	for _, b := range append(report.Weekly, report.Monthly...) {
		assert.Equal(t, report.JobID, b.JobID)
	}

	feb, err := f.store.GetMonthly(ctx, "T1", "daily_revenue", 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, 100.0, feb.ActualValue)
}

func TestAutoAggregate_HorizonStartsOnWeekStart(t *testing.T) {
	f := newFixture(t, "daily_revenue")
	f.seed("daily_revenue", "2024-03-01", 5)

	report, err := f.orch.AutoAggregate(context.Background(), "T1", day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-26", report.From)
	assert.Equal(t, []domain.YearMonth{{Year: 2024, Month: 2}, {Year: 2024, Month: 3}}, report.Months())
}

func TestAutoAggregate_MissingConfiguration(t *testing.T) {
	f := newFixture(t, "daily_revenue")
	_, err := f.orch.AutoAggregate(context.Background(), "T2", day("2024-03-01"))
	assert.True(t, errors.Is(err, rollup.ErrMissingConfiguration))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "daily_revenue", "occupancy")
	f.seed("daily_revenue", "2024-01-01", 1, 2, 3)
	f.seed("occupancy", "2024-01-02", 50)
	ctx := context.Background()

	_, err := f.orch.engine.RollupWeek(ctx, "T1", "daily_revenue", day("2024-01-01"))
	require.NoError(t, err)
	upserts := f.store.Upserts

	report, err := f.orch.Status(ctx, "T1", day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", report.WeekStart)
	assert.Equal(t, 1, report.Month)

	rev := report.Metrics["daily_revenue"]
	assert.Equal(t, 3, rev.DailyCount)
	assert.True(t, rev.HasWeekly)
	assert.False(t, rev.WeeklyComplete)
	assert.NotNil(t, rev.WeeklyCalculatedAt)
	assert.False(t, rev.NeedsWeekly)
	assert.True(t, rev.NeedsMonthly)

	occ := report.Metrics["occupancy"]
	assert.Equal(t, 1, occ.DailyCount)
	assert.True(t, occ.NeedsWeekly)
	assert.False(t, occ.NeedsMonthly)
	assert.Nil(t, occ.MonthlyCalculatedAt)

	assert.Equal(t, upserts, f.store.Upserts)
}
