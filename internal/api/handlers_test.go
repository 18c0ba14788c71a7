package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/kpi-rollup/internal/backfill"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/pkg/httputil"
	"github.com/ignite/kpi-rollup/internal/repository/memory"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/ignite/kpi-rollup/internal/trend"
)

func setupTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.AddTenant("T1")
	st.AddTenant("T2")
	st.AddMetric(domain.MetricDefinition{Code: "daily_revenue", Unit: "USD", Aggregation: domain.AggregateSum})
	st.SelectMetrics("T1", "daily_revenue")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		st.AddDaily(domain.DailyMeasurement{TenantID: "T1", MetricCode: "daily_revenue", Date: start.AddDate(0, 0, i), Value: 100})
	}

	engine := rollup.NewService(rollup.Deps{Tenants: st, Catalog: st, Ledger: st, Plans: st, Store: st})
	h := NewHandlers(engine, backfill.New(engine, st), trend.NewAnalyzer(st, st, st, nil, 0))
	h.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }

	srv := httptest.NewServer(SetupRoutes(h, NewHealthChecker(nil, nil, 0), []string{"https://kpi.example.com"}))
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e httputil.ErrorResponse
	decode(t, resp, &e)
	return e.Code
}

const kpiPath = "/api/v1/tenants/T1/kpis/daily_revenue"

func TestWeekly_RollupThenRead(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodPost, kpiPath+"/weekly", `{"date":"2024-01-03"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobID := resp.Header.Get("X-Job-ID")
	assert.NotEmpty(t, jobID)
	var written domain.WeeklySummary
	decode(t, resp, &written)
	assert.Equal(t, 700.0, written.ActualValue)
	assert.True(t, written.IsComplete)
	assert.Equal(t, jobID, written.CalculatedByJobID)

	resp = do(t, srv, http.MethodGet, kpiPath+"/weekly?date=2024-01-07", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var read domain.WeeklySummary
	decode(t, resp, &read)
	assert.Equal(t, written.ID, read.ID)
}

func TestWeekly_Errors(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodGet, kpiPath+"/weekly?date=2024-01-03", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, resp))

	resp = do(t, srv, http.MethodGet, "/api/v1/tenants/T1/kpis/ghost/weekly?date=2024-01-03", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_metric", errorCode(t, resp))

	resp = do(t, srv, http.MethodGet, "/api/v1/tenants/nobody/kpis/daily_revenue/monthly?year=2024&month=1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_tenant", errorCode(t, resp))

	resp = do(t, srv, http.MethodGet, kpiPath+"/weekly?date=01/03/2024", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/tenants/nobody/kpis/daily_revenue/weekly", `{"date":"2024-01-03"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_tenant", errorCode(t, resp))

	resp = do(t, srv, http.MethodPost, "/api/v1/tenants/T1/kpis/ghost/weekly", `{"date":"2024-01-03"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_metric", errorCode(t, resp))

	resp = do(t, srv, http.MethodPost, kpiPath+"/weekly", `{"date":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMonthly(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodPost, kpiPath+"/monthly", `{"year":2024,"month":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum domain.MonthlySummary
	decode(t, resp, &sum)
	assert.Equal(t, 700.0, sum.ActualValue)
	assert.Equal(t, domain.SourceDaily, sum.Source)

	resp = do(t, srv, http.MethodGet, kpiPath+"/monthly?year=2024&month=1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, kpiPath+"/monthly?year=2024&month=13", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, kpiPath+"/monthly", `{"year":2024,"month":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrend(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodGet, kpiPath+"/trend", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "insufficient_history", errorCode(t, resp))

	resp = do(t, srv, http.MethodGet, kpiPath+"/trend?window=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	do(t, srv, http.MethodPost, kpiPath+"/weekly", `{"date":"2024-01-01"}`)
	resp = do(t, srv, http.MethodGet, kpiPath+"/trend?window=4", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report domain.TrendReport
	decode(t, resp, &report)
	assert.Equal(t, 1, report.WeeksAnalyzed)
	assert.Equal(t, domain.TrendStable, report.Direction)
}

func TestRecalculate(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodPost, kpiPath+"/recalculate", `{"start_date":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, kpiPath+"/recalculate", `{"start_date":"2024-01-10","end_date":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, kpiPath+"/recalculate", `{"start_date":"2024-01-01","end_date":"2024-01-14"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report backfill.RecalcReport
	decode(t, resp, &report)
	assert.Equal(t, report.JobID, resp.Header.Get("X-Job-ID"))
	assert.Len(t, report.Weekly, 2)
	assert.Len(t, report.Monthly, 1)
	assert.Zero(t, report.ErrorCount)
}

func TestAggregateAll(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodPost, "/api/v1/tenants/T1/aggregate/weekly", `{"week_start":"2024-01-01"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var batch backfill.BatchReport
	decode(t, resp, &batch)
	assert.Equal(t, 1, batch.SuccessCount)

	resp = do(t, srv, http.MethodPost, "/api/v1/tenants/T1/aggregate/monthly", `{"year":2024,"month":1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/v1/tenants/T2/aggregate/weekly", `{"week_start":"2024-01-01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "missing_configuration", errorCode(t, resp))
}

func TestAutoAggregateAndStatus(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/v1/tenants/T1/aggregation-status?date=2024-01-03", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var before backfill.StatusReport
	decode(t, resp, &before)
	assert.True(t, before.Metrics["daily_revenue"].NeedsWeekly)

	// No body: the horizon defaults to the handler clock.
	resp = do(t, srv, http.MethodPost, "/api/v1/tenants/T1/auto-aggregate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var auto backfill.AutoReport
	decode(t, resp, &auto)
	assert.Equal(t, "2024-01-01", auto.From)
	assert.Len(t, auto.Weekly, 2)

	resp = do(t, srv, http.MethodGet, "/api/v1/tenants/T1/aggregation-status?date=2024-01-03", "")
	var after backfill.StatusReport
	decode(t, resp, &after)
	m := after.Metrics["daily_revenue"]
	assert.Equal(t, 7, m.DailyCount)
	assert.True(t, m.HasWeekly)
	assert.False(t, m.NeedsWeekly)
}

func TestInfrastructureRoutes(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthStatus
	decode(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)

	resp = do(t, srv, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+kpiPath+"/weekly", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://kpi.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer preflight.Body.Close()
	assert.Equal(t, "https://kpi.example.com", preflight.Header.Get("Access-Control-Allow-Origin"))
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"redis":    {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"redis":    {Status: "down", Message: "not configured"},
	}))
}
