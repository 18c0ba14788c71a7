package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*TrendCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTrendCache(client, time.Minute), mr
}

func report(tenant, metric string) *domain.TrendReport {
	return &domain.TrendReport{
		TenantID:      tenant,
		MetricCode:    metric,
		WeeksAnalyzed: 2,
		Direction:     domain.TrendImproving,
		Mean:          110,
		Weeks: []domain.TrendPoint{
			{WeekStart: "2024-01-01", Actual: 100, Status: domain.StatusGreen},
			{WeekStart: "2024-01-08", Actual: 120, Status: domain.StatusGreen},
		},
	}
}

func TestTrendCache_GetSet(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	_, hit, err := c.Get(ctx, "T1", "daily_revenue", 12)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, 12, report("T1", "daily_revenue")))
	assert.True(t, mr.Exists("kpi:trend:T1:daily_revenue:12"))
	assert.Equal(t, time.Minute, mr.TTL("kpi:trend:T1:daily_revenue:12"))

	got, hit, err := c.Get(ctx, "T1", "daily_revenue", 12)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, report("T1", "daily_revenue"), got)
}

func TestTrendCache_Expires(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 4, report("T1", "daily_revenue")))
	mr.FastForward(2 * time.Minute)

	_, hit, err := c.Get(ctx, "T1", "daily_revenue", 4)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTrendCache_InvalidateMetric(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 4, report("T1", "daily_revenue")))
	require.NoError(t, c.Set(ctx, 12, report("T1", "daily_revenue")))
	require.NoError(t, c.Set(ctx, 12, report("T1", "occupancy")))

	n, err := c.InvalidateMetric(ctx, "T1", "daily_revenue")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("kpi:trend:T1:daily_revenue:4"))
	assert.True(t, mr.Exists("kpi:trend:T1:occupancy:12"))
}

func TestTrendCache_OnWeeklyWrite(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, 12, report("T1", "daily_revenue")))

	c.OnWeeklyWrite(ctx, "T1", "daily_revenue", domain.PeriodMonth)
	assert.True(t, mr.Exists("kpi:trend:T1:daily_revenue:12"))

	c.OnWeeklyWrite(ctx, "T1", "daily_revenue", domain.PeriodWeek)
	assert.False(t, mr.Exists("kpi:trend:T1:daily_revenue:12"))
}

func TestTrendCache_CorruptEntry(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, mr.Set("kpi:trend:T1:daily_revenue:12", "{not json"))

	_, hit, err := c.Get(context.Background(), "T1", "daily_revenue", 12)
	assert.Error(t, err)
	assert.False(t, hit)
}
