package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aniruddhsingh7901/redditharvester/pkg/accountpool"
	"github.com/aniruddhsingh7901/redditharvester/pkg/scheduler"
)

// SupervisorConfig tunes the autoscaler's poll interval and target
// ready-to-worker ratio.
type SupervisorConfig struct {
	PollInterval time.Duration
	TargetRatio  float64 // default 0.75
}

// WorkerFactory builds one worker; the supervisor assigns it a fresh
// ID and its own RNG before spawning its goroutine.
type WorkerFactory func(id string, rng *rand.Rand) *Worker

// Supervisor reconciles the worker fleet to floor(ready*0.75) on a
// fixed poll interval, spawning and cancelling workers to track the
// target size.
type Supervisor struct {
	pool    *accountpool.Pool
	catalog *scheduler.Catalog
	factory WorkerFactory
	logger  *slog.Logger
	cfg     SupervisorConfig
	active  prometheus.Gauge

	mu      sync.Mutex
	workers []*workerHandle
	nextID  int
}

type workerHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates a Supervisor. active, if non-nil, is set to
// the current fleet size after every reconciliation.
func NewSupervisor(pool *accountpool.Pool, catalog *scheduler.Catalog, factory WorkerFactory, logger *slog.Logger, active prometheus.Gauge, cfg SupervisorConfig) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.TargetRatio <= 0 {
		cfg.TargetRatio = 0.75
	}
	return &Supervisor{pool: pool, catalog: catalog, factory: factory, logger: logger, active: active, cfg: cfg}
}

// Run blocks, reconciling the worker fleet every cfg.PollInterval
// until ctx is cancelled. On exit it cancels and awaits every
// outstanding worker shutdown contract.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("orchestrator supervisor started", "poll_interval", s.cfg.PollInterval)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("orchestrator supervisor stopping; draining workers")
			s.shutdownAll()
			return nil
		case <-ticker.C:
			if err := s.reconcile(ctx); err != nil {
				s.logger.Error("supervisor reconcile", "error", err)
			}
		}
	}
}

func (s *Supervisor) reconcile(ctx context.Context) error {
	s.reap()

	report, err := s.pool.HealthReport(ctx)
	if err != nil {
		return fmt.Errorf("reading health report: %w", err)
	}
	target := int(math.Floor(float64(report.Ready) * s.cfg.TargetRatio))

	s.mu.Lock()
	current := len(s.workers)
	s.mu.Unlock()

	if target > current {
		s.spawn(ctx, target-current)
	} else if target < current {
		s.cancelExcess(current - target)
	}

	s.mu.Lock()
	size := len(s.workers)
	s.mu.Unlock()
	if s.active != nil {
		s.active.Set(float64(size))
	}
	s.logger.Debug("supervisor reconciled", "ready", report.Ready, "target", target, "workers", size)
	return nil
}

func (s *Supervisor) spawn(parent context.Context, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("worker-%d", s.nextID)
		s.nextID++

		workerCtx, cancel := context.WithCancel(parent)
		handle := &workerHandle{id: id, cancel: cancel, done: make(chan struct{})}
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(s.nextID)))
		worker := s.factory(id, rng)

		go func() {
			defer close(handle.done)
			if err := worker.Run(workerCtx); err != nil {
				s.logger.Error("worker exited with error", "worker_id", id, "error", err)
			}
		}()

		s.workers = append(s.workers, handle)
		s.logger.Info("spawned worker", "worker_id", id, "fleet_size", len(s.workers))
	}
}

// cancelExcess cancels and awaits the oldest n workers (registration
// order) "oldest-first" reconciliation rule.
func (s *Supervisor) cancelExcess(n int) {
	s.mu.Lock()
	if n > len(s.workers) {
		n = len(s.workers)
	}
	victims := append([]*workerHandle(nil), s.workers[:n]...)
	s.workers = s.workers[n:]
	s.mu.Unlock()

	for _, h := range victims {
		h.cancel()
		<-h.done
		s.logger.Info("cancelled worker", "worker_id", h.id)
	}
}

// reap drops any worker whose goroutine already exited on its own.
func (s *Supervisor) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.workers[:0]
	for _, h := range s.workers {
		select {
		case <-h.done:
			s.logger.Info("reaped finished worker", "worker_id", h.id)
		default:
			alive = append(alive, h)
		}
	}
	s.workers = alive
}

func (s *Supervisor) shutdownAll() {
	s.mu.Lock()
	victims := s.workers
	s.workers = nil
	s.mu.Unlock()

	for _, h := range victims {
		h.cancel()
		<-h.done
	}
}
