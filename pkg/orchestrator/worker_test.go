package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aniruddhsingh7901/redditharvester/internal/platform"
	"github.com/aniruddhsingh7901/redditharvester/pkg/accountpool"
	"github.com/aniruddhsingh7901/redditharvester/pkg/errkind"
	"github.com/aniruddhsingh7901/redditharvester/pkg/scheduler"
)

type stubScraper struct {
	result Result
	err    error
}

func (s stubScraper) Scrape(ctx context.Context, job scheduler.Job, lease *accountpool.Lease) (Result, error) {
	return s.result, s.err
}

// cancelMidScrapeScraper cancels the worker's ctx before returning, simulating
// the supervisor scaling this worker down while Scrape is in flight.
type cancelMidScrapeScraper struct {
	cancel context.CancelFunc
	result Result
}

func (s cancelMidScrapeScraper) Scrape(ctx context.Context, job scheduler.Job, lease *accountpool.Lease) (Result, error) {
	s.cancel()
	return s.result, nil
}

func newTestWorker(t *testing.T, scraper Scraper, catalogPath string) (*Worker, *accountpool.Pool) {
	t.Helper()

	accountsDB, err := platform.Open(filepath.Join(t.TempDir(), "accounts.db"), platform.StoreAccounts)
	if err != nil {
		t.Fatalf("open accounts db: %v", err)
	}
	t.Cleanup(func() { accountsDB.Close() })
	pool := accountpool.New(accountsDB, 60)

	catalog := scheduler.NewCatalog(catalogPath, time.Minute, scheduler.PrefixMatch("Reddit"))
	runtime, err := scheduler.NewRuntimeState(filepath.Join(t.TempDir(), "job_state.json"), time.Millisecond, 2*time.Millisecond)
	if err != nil {
		t.Fatalf("new runtime state: %v", err)
	}

	w := &Worker{
		ID:          "worker-0",
		Catalog:     catalog,
		Runtime:     runtime,
		Pool:        pool,
		Checkpoints: scheduler.NewWorkerCheckpoints(accountsDB),
		Scraper:     scraper,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: WorkerConfig{
			IdleSleep:         5 * time.Millisecond,
			NoAccountSleep:    5 * time.Millisecond,
			ErrorBackoff:      5 * time.Millisecond,
			RateLimitCooldown: time.Second,
		},
		Rng: rand.New(rand.NewSource(1)),
	}
	return w, pool
}

func writeCatalog(t *testing.T, path string) {
	t.Helper()
	contents := `{"scraper_configs":[{"scraper_id":"Reddit.custom","jobs":[{"id":"job-1","weight":1,"params":{"label":"golang"}}]}]}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}
}

func TestWorkerIterateSuccessReleasesLease(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "scraping_config.json")
	writeCatalog(t, catalogPath)

	scraper := stubScraper{result: Result{Subreddit: "golang", FullnameIDs: []string{"t3_a", "t1_b"}, ItemCount: 2}}
	w, pool := newTestWorker(t, scraper, catalogPath)
	ctx := context.Background()

	if err := pool.AddAccount(ctx, accountpool.Account{AccountID: "acct-1", ClientID: "c", ClientSecret: "s", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("add account: %v", err)
	}

	if err := w.iterate(ctx); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	report, err := pool.HealthReport(ctx)
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Ready != 1 || report.Leased != 0 {
		t.Errorf("expected account released back to ready, got %+v", report)
	}

	cp, found, err := w.Checkpoints.Get(ctx, "worker-0")
	if err != nil || !found {
		t.Fatalf("checkpoint: found=%v err=%v", found, err)
	}
	if cp.LastPostID != "t3_a" || cp.LastCommentID != "t1_b" {
		t.Errorf("expected derived ids in checkpoint, got %+v", cp)
	}
}

func TestWorkerIterateRateLimitAppliesCooldown(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "scraping_config.json")
	writeCatalog(t, catalogPath)

	scraper := stubScraper{err: errors.New("429 too many requests")}
	w, pool := newTestWorker(t, scraper, catalogPath)
	ctx := context.Background()

	if err := pool.AddAccount(ctx, accountpool.Account{AccountID: "acct-1", ClientID: "c", ClientSecret: "s", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("add account: %v", err)
	}

	if err := w.iterate(ctx); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	report, err := pool.HealthReport(ctx)
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Cooling != 1 {
		t.Errorf("expected account cooling after rate-limit error, got %+v", report)
	}
}

func TestWorkerIterateAuthDeniedQuarantines(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "scraping_config.json")
	writeCatalog(t, catalogPath)

	scraper := stubScraper{err: errors.New("401 unauthorized")}
	w, pool := newTestWorker(t, scraper, catalogPath)
	ctx := context.Background()

	if err := pool.AddAccount(ctx, accountpool.Account{AccountID: "acct-1", ClientID: "c", ClientSecret: "s", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("add account: %v", err)
	}

	if err := w.iterate(ctx); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	report, err := pool.HealthReport(ctx)
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Quarantine != 1 {
		t.Errorf("expected account quarantined after auth denial, got %+v", report)
	}
}

func TestWorkerIterateReleasesLeaseWhenCancelledMidScrape(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "scraping_config.json")
	writeCatalog(t, catalogPath)

	ctx, cancel := context.WithCancel(context.Background())
	scraper := cancelMidScrapeScraper{cancel: cancel, result: Result{Subreddit: "golang", ItemCount: 1}}
	w, pool := newTestWorker(t, scraper, catalogPath)

	bgCtx := context.Background()
	if err := pool.AddAccount(bgCtx, accountpool.Account{AccountID: "acct-1", ClientID: "c", ClientSecret: "s", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("add account: %v", err)
	}

	if err := w.iterate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("iterate: %v", err)
	}

	report, err := pool.HealthReport(bgCtx)
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Leased != 0 {
		t.Errorf("expected lease released despite ctx cancellation mid-scrape, got %+v", report)
	}
}

func TestWorkerIterateNoReadyAccountSleepsAndReturns(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "scraping_config.json")
	writeCatalog(t, catalogPath)

	w, _ := newTestWorker(t, stubScraper{}, catalogPath)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := w.iterate(ctx); err != nil {
		t.Fatalf("expected iterate to recover from NoReadyAccount without returning an error, got %v", err)
	}
}

func TestLabelFromParamsDefaultsToAll(t *testing.T) {
	if got := labelFromParams(nil); got != "all" {
		t.Errorf("expected 'all' for nil params, got %q", got)
	}
	if got := labelFromParams([]byte(`{"label":"golang"}`)); got != "golang" {
		t.Errorf("expected 'golang', got %q", got)
	}
}

func TestClassifyUsedByWorkerMatchesHealthManagerHeuristic(t *testing.T) {
	if errkind.Classify("received a 403 Forbidden") != errkind.AuthDenied {
		t.Error("expected shared classification heuristic to treat 403 as auth denied")
	}
}
