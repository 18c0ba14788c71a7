package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/kpi-rollup/internal/backfill"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/pkg/httputil"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/ignite/kpi-rollup/internal/trend"
)

// Handlers serves the rollup, backfill and trend endpoints.
type Handlers struct {
	engine *rollup.Service
	orch   *backfill.Orchestrator
	trends *trend.Analyzer
	now    func() time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(engine *rollup.Service, orch *backfill.Orchestrator, trends *trend.Analyzer) *Handlers {
	return &Handlers{engine: engine, orch: orch, trends: trends, now: time.Now}
}

func pathIDs(r *http.Request) (tenantID, metricCode string) {
	return chi.URLParam(r, "tenantID"), chi.URLParam(r, "metricCode")
}

// withJob tags a single rollup with a fresh job id and echoes it back.
func withJob(ctx context.Context, w http.ResponseWriter) context.Context {
	id := uuid.NewString()
	w.Header().Set("X-Job-ID", id)
	return rollup.WithJobID(ctx, id)
}

// dateOrToday parses a YYYY-MM-DD value, defaulting to today.
func (h *Handlers) dateOrToday(s string) (time.Time, error) {
	if s == "" {
		return domain.Date(h.now()), nil
	}
	return domain.ParseDate(s)
}

func parseYearMonth(yearStr, monthStr string) (int, int, error) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, 0, fmt.Errorf("year must be an integer")
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || !domain.ValidMonth(month) {
		return 0, 0, fmt.Errorf("month must be between 1 and 12")
	}
	return year, month, nil
}

// GET /api/v1/tenants/{tenantID}/kpis/{metricCode}/weekly?date=
func (h *Handlers) GetWeekly(w http.ResponseWriter, r *http.Request) {
	tenantID, metricCode := pathIDs(r)
	date, err := h.dateOrToday(r.URL.Query().Get("date"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sum, err := h.engine.GetWeekly(r.Context(), tenantID, metricCode, date)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, sum)
}

type weeklyRequest struct {
	Date string `json:"date"`
}

// POST /api/v1/tenants/{tenantID}/kpis/{metricCode}/weekly
func (h *Handlers) RollupWeek(w http.ResponseWriter, r *http.Request) {
	tenantID, metricCode := pathIDs(r)
	var req weeklyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	date, err := h.dateOrToday(req.Date)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sum, err := h.engine.RollupWeek(withJob(r.Context(), w), tenantID, metricCode, date)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, sum)
}

// GET /api/v1/tenants/{tenantID}/kpis/{metricCode}/monthly?year=&month=
func (h *Handlers) GetMonthly(w http.ResponseWriter, r *http.Request) {
	tenantID, metricCode := pathIDs(r)
	year, month, err := parseYearMonth(r.URL.Query().Get("year"), r.URL.Query().Get("month"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sum, err := h.engine.GetMonthly(r.Context(), tenantID, metricCode, year, month)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, sum)
}

type monthlyRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// POST /api/v1/tenants/{tenantID}/kpis/{metricCode}/monthly
func (h *Handlers) RollupMonth(w http.ResponseWriter, r *http.Request) {
	tenantID, metricCode := pathIDs(r)
	var req monthlyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	sum, err := h.engine.RollupMonth(withJob(r.Context(), w), tenantID, metricCode, req.Year, req.Month)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, sum)
}

// GET /api/v1/tenants/{tenantID}/kpis/{metricCode}/trend?window=
func (h *Handlers) GetTrend(w http.ResponseWriter, r *http.Request) {
	tenantID, metricCode := pathIDs(r)
	window := 0
	if s := r.URL.Query().Get("window"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "window must be a positive integer")
			return
		}
		window = n
	}
	report, err := h.trends.Analyze(r.Context(), tenantID, metricCode, window)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, report)
}

type recalculateRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// POST /api/v1/tenants/{tenantID}/kpis/{metricCode}/recalculate
func (h *Handlers) Recalculate(w http.ResponseWriter, r *http.Request) {
	tenantID, metricCode := pathIDs(r)
	var req recalculateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		httputil.BadRequest(w, "start_date and end_date are required")
		return
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	end, err := domain.ParseDate(req.EndDate)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	report, err := h.orch.Recalculate(r.Context(), tenantID, metricCode, start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("X-Job-ID", report.JobID)
	httputil.OK(w, report)
}

type aggregateWeeklyRequest struct {
	WeekStart string `json:"week_start"`
}

// POST /api/v1/tenants/{tenantID}/aggregate/weekly
func (h *Handlers) AggregateWeekly(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req aggregateWeeklyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	date, err := h.dateOrToday(req.WeekStart)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	report, err := h.orch.AggregateAllWeekly(r.Context(), tenantID, date)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("X-Job-ID", report.JobID)
	httputil.OK(w, report)
}

// POST /api/v1/tenants/{tenantID}/aggregate/monthly
func (h *Handlers) AggregateMonthly(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req monthlyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	report, err := h.orch.AggregateAllMonthly(r.Context(), tenantID, req.Year, req.Month)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("X-Job-ID", report.JobID)
	httputil.OK(w, report)
}

type autoAggregateRequest struct {
	UpTo string `json:"up_to"`
}

// POST /api/v1/tenants/{tenantID}/auto-aggregate
func (h *Handlers) AutoAggregate(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req autoAggregateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	upTo, err := h.dateOrToday(req.UpTo)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	report, err := h.orch.AutoAggregate(r.Context(), tenantID, upTo)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("X-Job-ID", report.JobID)
	httputil.OK(w, report)
}

// GET /api/v1/tenants/{tenantID}/aggregation-status?date=
func (h *Handlers) AggregationStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	date, err := h.dateOrToday(r.URL.Query().Get("date"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	report, err := h.orch.Status(r.Context(), tenantID, date)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, report)
}
