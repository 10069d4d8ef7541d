package ratelimiter

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/aniruddhsingh7901/redditharvester/internal/platform"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratelimiter.db")
	db, err := platform.Open(path, platform.StoreRateBuckets)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureBucketIdempotent(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	ctx := context.Background()

	if err := l.EnsureBucket(ctx, "b1", 10, 2); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Drain three tokens so the row is observably different from "full".
	if ok, err := l.Acquire(ctx, "b1", 3, time.Second); err != nil || !ok {
		t.Fatalf("acquire setup failed: ok=%v err=%v", ok, err)
	}
	if err := l.EnsureBucket(ctx, "b1", 999, 999); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	var capacity, tokens, refill float64
	if err := db.QueryRow(`SELECT capacity, tokens, refill_rate FROM buckets WHERE bucket=?`, "b1").
		Scan(&capacity, &tokens, &refill); err != nil {
		t.Fatalf("query: %v", err)
	}
	if capacity != 10 || refill != 2 {
		t.Errorf("ensure_bucket twice must not retune existing row, got capacity=%v refill=%v", capacity, refill)
	}
	if tokens != 7 {
		t.Errorf("expected 7 tokens remaining, got %v", tokens)
	}
}

func TestAcquireBoundary(t *testing.T) {
	// Boundary scenario: capacity=2, refill=1; two sequential
	// acquire(1, timeout=100ms) succeed, a third fails.
	db := openTestDB(t)
	l := New(db)
	ctx := context.Background()

	if err := l.EnsureBucket(ctx, "boundary", 2, 1); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	ok1, err := l.Acquire(ctx, "boundary", 1, 100*time.Millisecond)
	if err != nil || !ok1 {
		t.Fatalf("first acquire should succeed: ok=%v err=%v", ok1, err)
	}
	ok2, err := l.Acquire(ctx, "boundary", 1, 100*time.Millisecond)
	if err != nil || !ok2 {
		t.Fatalf("second acquire should succeed: ok=%v err=%v", ok2, err)
	}
	ok3, err := l.Acquire(ctx, "boundary", 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("third acquire errored: %v", err)
	}
	if ok3 {
		t.Error("third acquire within 100ms should fail")
	}
}

func TestRefillMonotonic(t *testing.T) {
	// S6: capacity=10, refill=5, tokens=0; after 3s elapsed, refill
	// saturates at capacity before any deduction.
	db := openTestDB(t)
	l := New(db)
	ctx := context.Background()

	fakeNow := time.Unix(1_700_000_000, 0)
	l.nowFn = func() time.Time { return fakeNow }

	if err := l.EnsureBucket(ctx, "refill", 10, 5); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Drain to zero.
	if ok, err := l.Acquire(ctx, "refill", 10, time.Second); err != nil || !ok {
		t.Fatalf("drain failed: ok=%v err=%v", ok, err)
	}

	fakeNow = fakeNow.Add(3 * time.Second)
	var tokensBefore float64
	if err := db.QueryRow(`SELECT tokens FROM buckets WHERE bucket=?`, "refill").Scan(&tokensBefore); err != nil {
		t.Fatalf("query: %v", err)
	}

	ok, err := l.Acquire(ctx, "refill", 10, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected full refill to allow acquiring 10 tokens: ok=%v err=%v", ok, err)
	}
}

func TestAcquireRespectsDeadline(t *testing.T) {
	db := openTestDB(t)
	l := New(db)
	ctx := context.Background()

	if err := l.EnsureBucket(ctx, "starved", 1, 0); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if ok, err := l.Acquire(ctx, "starved", 1, time.Second); err != nil || !ok {
		t.Fatalf("drain failed: ok=%v err=%v", ok, err)
	}

	start := time.Now()
	ok, err := l.Acquire(ctx, "starved", 1, 150*time.Millisecond)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("acquire errored: %v", err)
	}
	if ok {
		t.Error("expected acquire to fail: bucket never refills with refill_rate=0")
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("acquire must not wait past its timeout, waited %v", elapsed)
	}
}
