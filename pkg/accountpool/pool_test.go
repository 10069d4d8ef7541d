package accountpool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aniruddhsingh7901/redditharvester/internal/platform"
	"github.com/aniruddhsingh7901/redditharvester/pkg/errkind"
)

func openTestPool(t *testing.T) *Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.db")
	db, err := platform.Open(path, platform.StoreAccounts)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, 60)
}

func writeProxiesFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxies.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing proxies file: %v", err)
	}
	return path
}

// S1: seed one account and one proxy; acquire() yields a lease with
// the seeded username and a non-null proxy; release(true) returns it
// to ready with a reduced cooldown.
func TestAcquireReleaseSuccess(t *testing.T) {
	p := openTestPool(t)
	ctx := context.Background()

	if err := p.AddAccount(ctx, Account{AccountID: "acct-1", ClientID: "cid", ClientSecret: "secret",
		Username: "dummy_user", Password: "pw"}); err != nil {
		t.Fatalf("add account: %v", err)
	}
	proxiesPath := writeProxiesFile(t, `[{"http":"http://p1:8080","https":"https://p1:8080","tag":"t1"}]`)
	if err := p.LoadProxiesFile(proxiesPath); err != nil {
		t.Fatalf("load proxies: %v", err)
	}

	lease, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lease.Username != "dummy_user" {
		t.Errorf("expected username dummy_user, got %s", lease.Username)
	}
	if lease.Proxy == nil {
		t.Fatal("expected non-nil proxy")
	}

	report, err := p.HealthReport(ctx)
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Leased != 1 || report.Ready != 0 {
		t.Errorf("expected 1 leased 0 ready, got %+v", report)
	}

	if err := lease.Release(ctx, true); err != nil {
		t.Fatalf("release: %v", err)
	}
	report, err = p.HealthReport(ctx)
	if err != nil {
		t.Fatalf("health report after release: %v", err)
	}
	if report.Ready != 1 || report.Leased != 0 {
		t.Errorf("expected 1 ready 0 leased after release, got %+v", report)
	}

	// Double-release must be a no-op, not an error.
	if err := lease.Release(ctx, true); err != nil {
		t.Errorf("double release must be tolerated, got %v", err)
	}
}

// S2: after acquire(), quarantine(lease, "auth") moves the account to
// quarantine and it is excluded from future acquires.
func TestQuarantineExcludesFromAcquire(t *testing.T) {
	p := openTestPool(t)
	ctx := context.Background()

	if err := p.AddAccount(ctx, Account{AccountID: "acct-1", ClientID: "cid", ClientSecret: "secret",
		Username: "u1", Password: "pw"}); err != nil {
		t.Fatalf("add account: %v", err)
	}

	lease, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lease.Quarantine(ctx, "auth"); err != nil {
		t.Fatalf("quarantine: %v", err)
	}

	report, err := p.HealthReport(ctx)
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Quarantine != 1 || report.Ready != 0 {
		t.Errorf("expected 1 quarantine, got %+v", report)
	}

	ctx2, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx2)
	if !errors.Is(err, errkind.ErrNoReadyAccount) {
		t.Errorf("expected NoReadyAccount after quarantine, got %v", err)
	}
}

func TestAddAccountIdempotent(t *testing.T) {
	p := openTestPool(t)
	ctx := context.Background()

	acct := Account{AccountID: "acct-1", ClientID: "cid", ClientSecret: "secret", Username: "u1", Password: "pw"}
	if err := p.AddAccount(ctx, acct); err != nil {
		t.Fatalf("first add: %v", err)
	}
	lease, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lease.Cooldown(ctx, 500, "rate-limit"); err != nil {
		t.Fatalf("cooldown: %v", err)
	}

	// Re-adding must not reset status/cooldown/fail_count/last_error.
	if err := p.AddAccount(ctx, acct); err != nil {
		t.Fatalf("second add: %v", err)
	}

	report, err := p.HealthReport(ctx)
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Cooling != 1 {
		t.Errorf("expected the cooldown to survive re-seeding, got %+v", report)
	}
}

func TestNoReadyAccountWhenPoolEmpty(t *testing.T) {
	p := openTestPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	_, err := p.Acquire(ctx)
	if !errors.Is(err, errkind.ErrNoReadyAccount) {
		t.Errorf("expected NoReadyAccount on empty pool, got %v", err)
	}
}

func TestProxyRotationRoundRobin(t *testing.T) {
	r := NewProxyRotator()
	path := writeProxiesFile(t, `[{"http":"http://a"},{"http":"http://b"}]`)
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	first := r.Next()
	second := r.Next()
	third := r.Next()
	if first.HTTP == second.HTTP {
		t.Errorf("expected rotation to alternate, got %s twice", first.HTTP)
	}
	if first.HTTP != third.HTTP {
		t.Errorf("expected rotation to cycle back to the first proxy")
	}
}

func TestProxyRotatorEmptyFileYieldsNilProxy(t *testing.T) {
	r := NewProxyRotator()
	if err := r.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if r.Next() != nil {
		t.Error("expected nil proxy from empty rotator")
	}
}
