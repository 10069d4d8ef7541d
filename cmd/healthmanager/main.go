// Command healthmanager runs C3 (pkg/healthmanager): an independent
// process that periodically probes ready-but-idle accounts and
// repairs the pool's health, running as a separate process in a
// two-process deployment model. It shares the accounts database with
// the orchestrator but is started and scaled separately.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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
	"github.com/aniruddhsingh7901/redditharvester/pkg/healthmanager"
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

	pool := accountpool.New(accountsDB, float64(cfg.CooldownBase))
	if err := pool.LoadProxiesFile(cfg.ProxiesJSON); err != nil {
		return fmt.Errorf("loading proxies file: %w", err)
	}

	metricsReg := telemetry.NewRegistry(telemetry.All()...)

	engine := healthmanager.New(pool, &placeholderProber{}, logger, healthmanager.Metrics{
		Ready:           telemetry.AccountsReady,
		Leased:          telemetry.AccountsLeased,
		Quarantine:      telemetry.AccountsQuarantine,
		Cooling:         telemetry.AccountsCooling,
		CheckTotal:      telemetry.AccountCheckTotal,
		QuarantineTotal: telemetry.AccountQuarantineTotal,
		CooldownTotal:   telemetry.AccountCooldownTotal,
		ErrorsByKind:    telemetry.AccountErrorsTotal,
	}, healthmanager.Config{
		Interval:        time.Duration(cfg.HealthInterval) * time.Second,
		CooldownBad:     time.Duration(cfg.HealthCooldownBad) * time.Second,
		CooldownRate:    time.Duration(cfg.HealthCooldownRate) * time.Second,
		QuarantineFails: cfg.HealthQuarantineFails,
		Fanout:          cfg.HealthFanout,
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
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return engine.Run(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// placeholderProber always reports success. Operators replace this
// with a Prober backed by an actual Reddit client; the
// Non-goals exclude a real remote protocol implementation from this
// module.
type placeholderProber struct{}

func (placeholderProber) Probe(ctx context.Context, account accountpool.Account, proxy *accountpool.Proxy) error {
	return nil
}
