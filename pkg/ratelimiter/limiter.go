// Package ratelimiter implements C1 : a durable,
// process-wide token-bucket governor backed by an embedded SQLite
// table, grounded in scraping/reddit/rate_limiter.py.
package ratelimiter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// defaultCapacity and defaultRefill back an unensured bucket the first
// time it's touched by Acquire
const (
	defaultCapacity = 5.0
	defaultRefill   = 5.0
	pollInterval    = 100 * time.Millisecond
)

// Limiter is a SQLite-backed token bucket limiter. One Limiter owns one
// database handle; all writes go through a single process-local mutex
// so the refill-then-deduct sequence is atomic within the process.
type Limiter struct {
	db    *sql.DB
	mu    sync.Mutex
	nowFn func() time.Time
}

// New wraps an already-open, already-migrated database handle.
func New(db *sql.DB) *Limiter {
	return &Limiter{db: db, nowFn: time.Now}
}

// epochSeconds renders t as fractional seconds since the epoch, the
// same resolution the source's time.time() gives Python.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// EnsureBucket inserts a bucket row with full tokens if absent. It is
// idempotent: an existing row's capacity/refill_rate are left
// untouched.
func (l *Limiter) EnsureBucket(ctx context.Context, name string, capacity, refillRate float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := epochSeconds(l.nowFn())
	var existing string
	err := l.db.QueryRowContext(ctx, `SELECT bucket FROM buckets WHERE bucket = ?`, name).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err := l.db.ExecContext(ctx,
			`INSERT INTO buckets(bucket, capacity, tokens, refill_rate, updated_at) VALUES (?, ?, ?, ?, ?)`,
			name, capacity, capacity, refillRate, now)
		if err != nil {
			return fmt.Errorf("ensuring bucket %s: %w", name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("checking bucket %s: %w", name, err)
	default:
		return nil
	}
}

// Acquire attempts to take tokens from the named bucket, polling every
// 100ms until it succeeds or timeout elapses. It never waits past
// the deadline computed at entry
func (l *Limiter) Acquire(ctx context.Context, name string, tokens float64, timeout time.Duration) (bool, error) {
	deadline := l.nowFn().Add(timeout)

	for {
		acquired, err := l.tryAcquireOnce(ctx, name, tokens)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}
		if l.nowFn().After(deadline) || l.nowFn().Equal(deadline) {
			return false, nil
		}

		remaining := deadline.Sub(l.nowFn())
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Limiter) tryAcquireOnce(ctx context.Context, name string, tokens float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	nowUnix := epochSeconds(now)

	var capacity, current, refill, updatedAt float64
	err := l.db.QueryRowContext(ctx,
		`SELECT capacity, tokens, refill_rate, updated_at FROM buckets WHERE bucket = ?`, name).
		Scan(&capacity, &current, &refill, &updatedAt)

	switch {
	case err == sql.ErrNoRows:
		// No bucket ensured yet: insert a conservative default
		capacity, current, refill, updatedAt = defaultCapacity, defaultCapacity, defaultRefill, nowUnix
		if _, err := l.db.ExecContext(ctx,
			`INSERT INTO buckets(bucket, capacity, tokens, refill_rate, updated_at) VALUES (?, ?, ?, ?, ?)`,
			name, capacity, current, refill, updatedAt); err != nil {
			return false, fmt.Errorf("inserting default bucket %s: %w", name, err)
		}
	case err != nil:
		return false, fmt.Errorf("reading bucket %s: %w", name, err)
	}

	elapsed := nowUnix - updatedAt
	if elapsed < 0 {
		elapsed = 0
	}
	refilled := current + refill*elapsed
	if refilled > capacity {
		refilled = capacity
	}

	if refilled >= tokens {
		refilled -= tokens
		if _, err := l.db.ExecContext(ctx,
			`UPDATE buckets SET tokens = ?, updated_at = ? WHERE bucket = ?`,
			refilled, nowUnix, name); err != nil {
			return false, fmt.Errorf("deducting from bucket %s: %w", name, err)
		}
		return true, nil
	}

	if _, err := l.db.ExecContext(ctx,
		`UPDATE buckets SET tokens = ?, updated_at = ? WHERE bucket = ?`,
		refilled, nowUnix, name); err != nil {
		return false, fmt.Errorf("refilling bucket %s: %w", name, err)
	}
	return false, nil
}
