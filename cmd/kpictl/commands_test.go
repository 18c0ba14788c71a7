package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/kpi-rollup/internal/backfill"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/repository/memory"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/ignite/kpi-rollup/internal/trend"
)

func memoryOpener(t *testing.T) (opener, *bool) {
	t.Helper()
	st := memory.New()
	st.AddTenant("T1")
	st.AddMetric(domain.MetricDefinition{Code: "daily_revenue", Aggregation: domain.AggregateSum})
	st.SelectMetrics("T1", "daily_revenue")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		st.AddDaily(domain.DailyMeasurement{TenantID: "T1", MetricCode: "daily_revenue", Date: start.AddDate(0, 0, i), Value: 50})
	}
	engine := rollup.NewService(rollup.Deps{Tenants: st, Catalog: st, Ledger: st, Plans: st, Store: st})
	closed := false
	return func(context.Context, string) (*services, error) {
		return &services{
			engine: engine,
			orch:   backfill.New(engine, st),
			trends: trend.NewAnalyzer(st, st, st, nil, 0),
			close:  func() { closed = true },
		}, nil
	}, &closed
}

func execute(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestWeeklyCommand(t *testing.T) {
	open, closed := memoryOpener(t)

	out, err := execute(t, open, "weekly", "--tenant", "T1", "--metric", "daily_revenue", "--date", "2024-01-03")
	require.NoError(t, err)
	var sum domain.WeeklySummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 350.0, sum.ActualValue)
	assert.NotEmpty(t, sum.CalculatedByJobID)
	assert.True(t, *closed)
}

func TestMonthlyCommand_Read(t *testing.T) {
	open, _ := memoryOpener(t)

	_, err := execute(t, open, "monthly", "--tenant", "T1", "--metric", "daily_revenue", "--year", "2024", "--month", "1", "--read")
	assert.ErrorIs(t, err, rollup.ErrSummaryNotFound)

	_, err = execute(t, open, "monthly", "--tenant", "T1", "--metric", "daily_revenue", "--year", "2024", "--month", "1")
	require.NoError(t, err)

	out, err := execute(t, open, "monthly", "--tenant", "T1", "--metric", "daily_revenue", "--year", "2024", "--month", "1", "--read")
	require.NoError(t, err)
	assert.Contains(t, out, `"actual_value": 350`)
}

func TestAggregateAndAutoCommands(t *testing.T) {
	open, _ := memoryOpener(t)

	out, err := execute(t, open, "aggregate", "weekly", "--tenant", "T1", "--week", "2024-01-05")
	require.NoError(t, err)
	var batch backfill.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Equal(t, "2024-01-01", batch.Period)
	assert.Equal(t, 1, batch.SuccessCount)

	out, err = execute(t, open, "auto", "--tenant", "T1", "--up-to", "2024-01-20")
	require.NoError(t, err)
	var auto backfill.AutoReport
	require.NoError(t, json.Unmarshal([]byte(out), &auto))
	assert.Len(t, auto.Weekly, 3)
	assert.Len(t, auto.Monthly, 1)
}

func TestRecalculateAndTrendCommands(t *testing.T) {
	open, _ := memoryOpener(t)

	_, err := execute(t, open, "recalculate", "--tenant", "T1", "--metric", "daily_revenue", "--start", "2024-01-10", "--end", "2024-01-01")
	assert.ErrorIs(t, err, rollup.ErrInvalidPeriod)

	_, err = execute(t, open, "recalculate", "--tenant", "T1", "--metric", "daily_revenue", "--start", "2024-01-01", "--end", "2024-01-07")
	require.NoError(t, err)

	out, err := execute(t, open, "trend", "--tenant", "T1", "--metric", "daily_revenue", "--window", "4")
	require.NoError(t, err)
	var report domain.TrendReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.WeeksAnalyzed)
}

func TestStatusCommand(t *testing.T) {
	open, _ := memoryOpener(t)

	out, err := execute(t, open, "status", "--tenant", "T1", "--date", "2024-01-03")
	require.NoError(t, err)
	var status backfill.StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 7, status.Metrics["daily_revenue"].DailyCount)
}

func TestRequiredFlags(t *testing.T) {
	open, _ := memoryOpener(t)

	_, err := execute(t, open, "weekly", "--metric", "daily_revenue")
	assert.ErrorContains(t, err, "tenant")

	_, err = execute(t, open, "weekly", "--tenant", "T1")
	assert.ErrorContains(t, err, "metric")

	_, err = execute(t, open, "weekly", "--tenant", "T1", "--metric", "daily_revenue", "--date", "yesterday")
	assert.Error(t, err)
}
