// Package distlock serializes rollup runs for a tenant across worker
// processes.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned by Run when another holder owns the lock.
	ErrNotAcquired = errors.New("distlock: lock held elsewhere")
	// ErrLockLost is returned by Extend when the lock expired or changed owner.
	ErrLockLost = errors.New("distlock: lock no longer owned")
)

// DistLock is a non-blocking mutual exclusion lock. A DistLock value is owned
// by one goroutine; concurrent holders need separate instances.
type DistLock interface {
	// Acquire tries to take the lock and reports whether it succeeded.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance still owns it.
	Release(ctx context.Context) error
}

// Factory builds locks against Redis when a client is configured and
// PostgreSQL advisory locks otherwise.
type Factory struct {
	Redis *redis.Client
	DB    *sql.DB
	TTL   time.Duration
}

// For returns a fresh lock for key.
func (f Factory) For(key string) DistLock {
	if f.Redis != nil {
		return NewRedisLock(f.Redis, key, f.TTL)
	}
	return NewPGAdvisoryLock(f.DB, key)
}

// TenantRollupKey names the lock held while a tenant is being rolled up.
func TenantRollupKey(tenantID string) string {
	return "kpi-rollup:tenant:" + tenantID
}

// Run executes fn while holding lock. It returns ErrNotAcquired without
// calling fn if the lock is taken. The lock is released with a fresh context
// so cancellation of ctx does not leak it.
func Run(ctx context.Context, lock DistLock, fn func(ctx context.Context) error) error {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}()
	return fn(ctx)
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks are session scoped, so the lock pins one pooled connection from
// Acquire until Release; a dropped connection frees the lock.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire implements DistLock.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("distlock: advisory lock already held by this instance")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("reserve connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release implements DistLock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	return nil
}
