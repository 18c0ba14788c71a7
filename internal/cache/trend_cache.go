// Package cache keeps computed trend reports in Redis so repeated dashboard
// reads do not reload the weekly history.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/observability"
	"github.com/ignite/kpi-rollup/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "kpi:trend"

// DefaultTTL bounds how long a report survives without an invalidation.
const DefaultTTL = 15 * time.Minute

// TrendCache stores TrendReports as JSON, one key per tenant, metric and
// window size.
type TrendCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTrendCache creates a cache. A non-positive ttl uses DefaultTTL.
func NewTrendCache(client *redis.Client, ttl time.Duration) *TrendCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TrendCache{client: client, ttl: ttl}
}

func trendKey(tenantID, metricCode string, window int) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, tenantID, metricCode, window)
}

// Get returns the cached report, if any.
func (c *TrendCache) Get(ctx context.Context, tenantID, metricCode string, window int) (*domain.TrendReport, bool, error) {
	raw, err := c.client.Get(ctx, trendKey(tenantID, metricCode, window)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordTrendCache(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get trend: %w", err)
	}
	var report domain.TrendReport
	if err := json.Unmarshal(raw, &report); err != nil {
		observability.RecordTrendCache(false)
		return nil, false, fmt.Errorf("decode cached trend: %w", err)
	}
	observability.RecordTrendCache(true)
	return &report, true, nil
}

// Set stores report under its tenant and metric.
func (c *TrendCache) Set(ctx context.Context, window int, report *domain.TrendReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode trend: %w", err)
	}
	key := trendKey(report.TenantID, report.MetricCode, window)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set trend: %w", err)
	}
	return nil
}

// InvalidateMetric drops every cached window for tenant and metric using
// SCAN + DEL.
func (c *TrendCache) InvalidateMetric(ctx context.Context, tenantID, metricCode string) (int, error) {
	pattern := fmt.Sprintf("%s:%s:%s:*", keyPrefix, tenantID, metricCode)
	deleted := 0

	iter := c.client.Scan(ctx, 0, pattern, 200).Iterator()
	pipe := c.client.Pipeline()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		deleted++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis SCAN %s: %w", pattern, err)
	}
	if deleted == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis invalidate pipeline exec: %w", err)
	}
	return deleted, nil
}

// OnWeeklyWrite is a rollup write hook: any weekly upsert makes the cached
// trends of that metric stale. Monthly writes do not feed trends.
func (c *TrendCache) OnWeeklyWrite(ctx context.Context, tenantID, metricCode string, kind domain.PeriodKind) {
	if kind != domain.PeriodWeek {
		return
	}
	if _, err := c.InvalidateMetric(ctx, tenantID, metricCode); err != nil {
		// The TTL bounds staleness if invalidation fails.
		logger.Warn("trend cache invalidation failed", "tenant", tenantID, "metric", metricCode, "error", err)
	}
}
