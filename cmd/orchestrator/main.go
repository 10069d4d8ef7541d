// Command orchestrator runs C5 (pkg/orchestrator): the autoscaling
// worker fleet that pulls ready jobs from the catalog, leases
// accounts from the pool, and delegates the actual Reddit fetch to a
// Scraper implementation. The concrete Reddit API client is outside
// this module's scope (the Non-goals exclude a remote protocol
// implementation); this binary wires a placeholder Scraper so the
// fleet's lease/checkpoint/backoff machinery is fully exercised end
// to end. Production deployments link in a real Scraper and run this
// same supervisor/worker wiring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aniruddhsingh7901/redditharvester/internal/config"
	"github.com/aniruddhsingh7901/redditharvester/internal/httpserver"
	"github.com/aniruddhsingh7901/redditharvester/internal/platform"
	"github.com/aniruddhsingh7901/redditharvester/internal/telemetry"
	"github.com/aniruddhsingh7901/redditharvester/pkg/accountpool"
	"github.com/aniruddhsingh7901/redditharvester/pkg/orchestrator"
	"github.com/aniruddhsingh7901/redditharvester/pkg/ratelimiter"
	"github.com/aniruddhsingh7901/redditharvester/pkg/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	accountsDB, err := platform.Open(cfg.AccountsDB, platform.StoreAccounts)
	if err != nil {
		return fmt.Errorf("opening accounts db: %w", err)
	}
	defer accountsDB.Close()

	checkpointsDB, err := platform.Open(cfg.CheckpointsDB, platform.StoreCheckpoints)
	if err != nil {
		return fmt.Errorf("opening checkpoints db: %w", err)
	}
	defer checkpointsDB.Close()

	rateDB, err := platform.Open(cfg.RateDB, platform.StoreRateBuckets)
	if err != nil {
		return fmt.Errorf("opening rate limiter db: %w", err)
	}
	defer rateDB.Close()

	pool := accountpool.New(accountsDB, float64(cfg.CooldownBase))
	if err := pool.LoadProxiesFile(cfg.ProxiesJSON); err != nil {
		return fmt.Errorf("loading proxies file: %w", err)
	}

	limiter := ratelimiter.New(rateDB)
	if err := limiter.EnsureBucket(ctx, cfg.RateBucketName, cfg.RateBucketCapacity, cfg.RateBucketRefill); err != nil {
		return fmt.Errorf("ensuring rate bucket %s: %w", cfg.RateBucketName, err)
	}

	catalog := scheduler.NewCatalog(cfg.CatalogPath, time.Duration(cfg.PollSeconds)*time.Second, scheduler.PrefixMatch(cfg.ScraperID))
	runtime, err := scheduler.NewRuntimeState(cfg.JobStateJSON, time.Duration(cfg.JobCooldownMin)*time.Second, time.Duration(cfg.JobCooldownMax)*time.Second)
	if err != nil {
		return fmt.Errorf("loading job runtime state: %w", err)
	}
	workerCheckpoints := scheduler.NewWorkerCheckpoints(accountsDB)
	_ = scheduler.NewJobCheckpoints(checkpointsDB) // not used by the fleet; the placeholder Scraper holds no job checkpoints

	metricsReg := telemetry.NewRegistry(telemetry.All()...)

	scraper := &placeholderScraper{limiter: limiter, bucketName: cfg.RateBucketName, entityLimit: cfg.EntityLimit}

	workerCfg := orchestrator.WorkerConfig{
		IdleSleep:         time.Duration(cfg.IdleSleep) * time.Second,
		NoAccountSleep:    time.Duration(cfg.IdleSleep) * time.Second,
		ErrorBackoff:      time.Duration(cfg.HealthCooldownBad) * time.Second,
		RateLimitCooldown: time.Duration(cfg.HealthCooldownRate) * time.Second,
	}
	workerMetrics := orchestrator.WorkerMetrics{
		ItemsScraped:  telemetry.ItemsScrapedTotal,
		AccountErrors: telemetry.AccountErrorsTotal,
	}

	factory := func(id string, rng *rand.Rand) *orchestrator.Worker {
		return &orchestrator.Worker{
			ID:          id,
			Catalog:     catalog,
			Runtime:     runtime,
			Pool:        pool,
			Checkpoints: workerCheckpoints,
			Scraper:     scraper,
			Logger:      logger.With("worker_id", id),
			Metrics:     workerMetrics,
			Config:      workerCfg,
			Rng:         rng,
		}
	}

	supervisor := orchestrator.NewSupervisor(pool, catalog, factory, logger, telemetry.WorkersActive, orchestrator.SupervisorConfig{
		PollInterval: time.Duration(cfg.PollSeconds) * time.Second,
		TargetRatio:  0.75,
	})

	srv := httpserver.NewServer(logger, accountsDB, metricsReg)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.PromPort),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("metrics server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return supervisor.Run(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// placeholderScraper demonstrates the shape every real Scraper must
// have: it acquires a rate-limiter token before doing any "API work".
// It then returns an error, because no real client is wired, so every
// job takes the worker's error path. Operators replace this with a
// Scraper backed by an actual Reddit client.
type placeholderScraper struct {
	limiter     *ratelimiter.Limiter
	bucketName  string
	entityLimit int
}

func (p *placeholderScraper) Scrape(ctx context.Context, job scheduler.Job, lease *accountpool.Lease) (orchestrator.Result, error) {
	ok, err := p.limiter.Acquire(ctx, p.bucketName, 1, 2*time.Second)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("acquiring rate token: %w", err)
	}
	if !ok {
		return orchestrator.Result{}, fmt.Errorf("rate limited: no Scraper wired for job %s", job.ID)
	}
	return orchestrator.Result{}, fmt.Errorf("no Scraper implementation wired for job %s; see pkg/orchestrator.Scraper", job.ID)
}
