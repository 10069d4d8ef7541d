// Package healthmanager implements C3 : a
// supervisor loop that probes ready-but-idle accounts and repairs
// the pool's health independently of the orchestrator, grounded in
// pkg/escalation's ticker-driven Engine.
package healthmanager

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/aniruddhsingh7901/redditharvester/pkg/accountpool"
	"github.com/aniruddhsingh7901/redditharvester/pkg/errkind"
)

// Prober issues the minimal remote probe: construct a client with the
// given credentials and proxy, invoke the cheapest list endpoint
// bounded to one item, and report the outcome. It is the external
// collaborator boundary; the concrete Reddit client lives outside
// this package.
type Prober interface {
	Probe(ctx context.Context, account accountpool.Account, proxy *accountpool.Proxy) error
}

// Config tunes the engine ACCOUNT_MANAGER_* knobs.
type Config struct {
	Interval        time.Duration
	CooldownBad     time.Duration
	CooldownRate    time.Duration
	QuarantineFails int
	Fanout          int
}

// Metrics is the set of collectors the engine publishes to, wired by
// the caller from internal/telemetry.
type Metrics struct {
	Ready           prometheus.Gauge
	Leased          prometheus.Gauge
	Quarantine      prometheus.Gauge
	Cooling         prometheus.Gauge
	CheckTotal      prometheus.Counter
	QuarantineTotal prometheus.Counter
	CooldownTotal   prometheus.Counter
	ErrorsByKind    *prometheus.CounterVec
}

// Engine is the health manager's background loop.
type Engine struct {
	pool    *accountpool.Pool
	prober  Prober
	logger  *slog.Logger
	metrics Metrics
	cfg     Config
}

// New creates a health manager Engine.
func New(pool *accountpool.Pool, prober Prober, logger *slog.Logger, metrics Metrics, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 10
	}
	return &Engine{pool: pool, prober: prober, logger: logger, metrics: metrics, cfg: cfg}
}

// Run blocks, ticking every cfg.Interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("health manager started", "interval", e.cfg.Interval)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("health manager stopped")
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error("health manager tick", "error", err)
			}
		}
	}
}

// tick runs one full cycle: publish status gauges, then probe every
// ready-and-eligible account under the fanout limit.
func (e *Engine) tick(ctx context.Context) error {
	report, err := e.pool.HealthReport(ctx)
	if err != nil {
		return err
	}
	e.publishGauges(report)

	candidates, err := e.pool.ReadyCandidates(ctx)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Fanout)
	for _, account := range candidates {
		account := account
		group.Go(func() error {
			e.probeOne(gctx, account)
			return nil
		})
	}
	return group.Wait()
}

func (e *Engine) publishGauges(report accountpool.HealthReport) {
	if e.metrics.Ready != nil {
		e.metrics.Ready.Set(float64(report.Ready))
	}
	if e.metrics.Leased != nil {
		e.metrics.Leased.Set(float64(report.Leased))
	}
	if e.metrics.Quarantine != nil {
		e.metrics.Quarantine.Set(float64(report.Quarantine))
	}
	if e.metrics.Cooling != nil {
		e.metrics.Cooling.Set(float64(report.Cooling))
	}
}

// probeOne runs a single account's probe and applies the matching
// transition; errors are logged, never returned, so one bad account
// cannot abort the rest of the cycle.
func (e *Engine) probeOne(ctx context.Context, account accountpool.Account) {
	var proxy *accountpool.Proxy
	if account.ProxyID != "" {
		proxy = &accountpool.Proxy{ProxyID: account.ProxyID}
	}

	err := e.prober.Probe(ctx, account, proxy)
	if e.metrics.CheckTotal != nil {
		e.metrics.CheckTotal.Inc()
	}
	if err == nil {
		if applyErr := e.pool.ProbeOK(ctx, account.AccountID); applyErr != nil {
			e.logger.Error("recording healthy probe", "account_id", account.AccountID, "error", applyErr)
		}
		return
	}

	kind := errkind.Classify(err.Error())
	reason := errkind.ReasonLabel(kind)
	e.logger.Warn("account probe failed", "account_id", account.AccountID, "kind", kind, "error", err)
	if e.metrics.ErrorsByKind != nil {
		e.metrics.ErrorsByKind.WithLabelValues(string(kind)).Inc()
	}

	switch kind {
	case errkind.RateLimited:
		if applyErr := e.pool.ProbeCooldown(ctx, account.AccountID, e.cfg.CooldownRate.Seconds(), reason); applyErr != nil {
			e.logger.Error("applying rate-limit cooldown", "account_id", account.AccountID, "error", applyErr)
		}
		e.incCooldown()
	case errkind.AuthDenied:
		if applyErr := e.pool.ProbeQuarantine(ctx, account.AccountID, reason); applyErr != nil {
			e.logger.Error("applying quarantine", "account_id", account.AccountID, "error", applyErr)
		}
		e.incQuarantine()
	default:
		failCount, applyErr := e.pool.ProbeNetworkFailure(ctx, account.AccountID, reason)
		if applyErr != nil {
			e.logger.Error("recording network failure", "account_id", account.AccountID, "error", applyErr)
			return
		}
		if failCount >= e.cfg.QuarantineFails {
			if qErr := e.pool.ProbeQuarantine(ctx, account.AccountID, reason); qErr != nil {
				e.logger.Error("quarantining after repeated failures", "account_id", account.AccountID, "error", qErr)
			}
			e.incQuarantine()
			return
		}
		if cErr := e.pool.ProbeCooldown(ctx, account.AccountID, e.cfg.CooldownBad.Seconds(), reason); cErr != nil {
			e.logger.Error("applying network cooldown", "account_id", account.AccountID, "error", cErr)
		}
		e.incCooldown()
	}
}

func (e *Engine) incCooldown() {
	if e.metrics.CooldownTotal != nil {
		e.metrics.CooldownTotal.Inc()
	}
}

func (e *Engine) incQuarantine() {
	if e.metrics.QuarantineTotal != nil {
		e.metrics.QuarantineTotal.Inc()
	}
}
