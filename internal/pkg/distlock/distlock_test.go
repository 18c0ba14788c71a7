package distlock

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestRedisLock_Exclusive(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, TenantRollupKey("T1"), time.Minute)
	b := NewRedisLock(client, TenantRollupKey("T1"), time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:kpi-rollup:tenant:T1"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b does not own the lock, so its release is a no-op.
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:kpi-rollup:tenant:T1"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:kpi-rollup:tenant:T1"))
}

func TestRedisLock_Extend(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "k", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("lock:k"))

	mr.FastForward(2 * time.Minute)
	assert.True(t, errors.Is(l.Extend(ctx, time.Minute), ErrLockLost))
}

func TestRun(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()
	f := Factory{Redis: client, TTL: time.Minute}

	holder := f.For("tenant")
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	err = Run(ctx, f.For("tenant"), func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.False(t, called)

	require.NoError(t, holder.Release(ctx))

	boom := errors.New("boom")
	err = Run(ctx, f.For("tenant"), func(context.Context) error { return boom })
	assert.Equal(t, boom, err)

	// Run released the lock after fn returned.
	ok, err = f.For("tenant").Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	l := Factory{DB: db}.For("tenant").(*PGAdvisoryLock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_Busy(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	l := NewPGAdvisoryLock(db, "tenant")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, l.conn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_SameKeySameID(t *testing.T) {
	assert.Equal(t, NewPGAdvisoryLock(nil, "a").lockID, NewPGAdvisoryLock(nil, "a").lockID)
	assert.NotEqual(t, NewPGAdvisoryLock(nil, "a").lockID, NewPGAdvisoryLock(nil, "b").lockID)
}
