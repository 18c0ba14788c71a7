package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/kpi-rollup/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the service.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker checks the database, the Redis cache and how recently a
// summary was written. Any dependency can be nil.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	staleAfter  time.Duration
	startTime   time.Time
}

// NewHealthChecker creates a HealthChecker. Summaries older than staleAfter
// degrade the freshness check; zero disables it.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		staleAfter:  staleAfter,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

// HandleHealth always returns 200; the body carries the status.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when the service is unhealthy.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"freshness", hc.checkFreshness(ctx)} }()

	checks := make(map[string]ComponentCheck, 3)
	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > 1*time.Second {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkRedis pings the trend cache with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > 500*time.Millisecond {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkFreshness reports the newest weekly summary write. A scheduler that
// stopped running shows up here as "degraded".
func (hc *HealthChecker) checkFreshness(ctx context.Context) ComponentCheck {
	if hc.db == nil || hc.staleAfter <= 0 {
		return ComponentCheck{Status: "up", Message: "not monitored"}
	}

	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	var last sql.NullTime
	err := hc.db.QueryRowContext(queryCtx, `SELECT MAX(calculated_at) FROM kpi_weekly_summaries`).Scan(&last)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("freshness check failed: %v", err)}
	}
	if !last.Valid {
		return ComponentCheck{Status: "up", Latency: latency.String(), Message: "no summaries yet"}
	}
	age := time.Since(last.Time)
	if age > hc.staleAfter {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("last summary written %s ago", formatUptime(age))}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: fmt.Sprintf("last summary written %s ago", formatUptime(age))}
}

// determineOverallStatus is "unhealthy" when a configured database is down,
// "degraded" when any other check is not up, and "healthy" otherwise.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" && db.Message != "not configured" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
	}
	for name, c := range checks {
		if name != "database" && c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, int(d.Seconds())%60)
}
