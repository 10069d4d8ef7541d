package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aniruddhsingh7901/redditharvester/pkg/accountpool"
	"github.com/aniruddhsingh7901/redditharvester/pkg/errkind"
	"github.com/aniruddhsingh7901/redditharvester/pkg/scheduler"
)

// WorkerConfig tunes one worker's loop: idle/backoff sleep durations
// and cooldown lengths applied after rate-limit and error outcomes.
type WorkerConfig struct {
	IdleSleep         time.Duration
	NoAccountSleep    time.Duration
	ErrorBackoff      time.Duration
	RateLimitCooldown time.Duration
}

// WorkerMetrics is the optional set of collectors a worker publishes
// to, wired from internal/telemetry.
type WorkerMetrics struct {
	ItemsScraped  *prometheus.CounterVec // labels: type, subreddit
	AccountErrors *prometheus.CounterVec // labels: kind
}

// Worker runs one independent loop: pull a ready
// job, acquire a lease, delegate to the external Scraper, and apply
// the outcome to job runtime state, worker checkpoints, and the
// lease's terminal transition.
type Worker struct {
	ID          string
	Catalog     *scheduler.Catalog
	Runtime     *scheduler.RuntimeState
	Pool        *accountpool.Pool
	Checkpoints *scheduler.WorkerCheckpoints
	Scraper     Scraper
	Logger      *slog.Logger
	Metrics     WorkerMetrics
	Config      WorkerConfig
	Rng         *rand.Rand
}

// Run blocks until ctx is cancelled, implementing the worker loop. A
// cancelled worker releases any lease it is holding before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := w.iterate(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.Logger.Error("worker iteration failed", "worker_id", w.ID, "error", err)
		}
	}
}

func (w *Worker) iterate(ctx context.Context) error {
	jobs, err := w.Catalog.Jobs()
	if err != nil {
		return err
	}
	ready := w.Runtime.ReadyJobs(jobs, time.Now())
	if len(ready) == 0 {
		return w.sleep(ctx, w.Config.IdleSleep)
	}

	job, ok := scheduler.Select(w.Rng, ready)
	if !ok {
		return w.sleep(ctx, w.Config.IdleSleep)
	}

	lease, err := w.Pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, errkind.ErrNoReadyAccount) {
			return w.sleep(ctx, w.Config.NoAccountSleep)
		}
		return err
	}

	subreddit := labelFromParams(job.Params)
	traceID := uuid.NewString()

	if err := w.Checkpoints.Upsert(ctx, scheduler.WorkerCheckpoint{
		WorkerID: w.ID, AccountID: lease.AccountID, LastSubreddit: subreddit,
	}); err != nil {
		w.Logger.Error("writing initial worker checkpoint", "worker_id", w.ID, "trace_id", traceID, "error", err)
	}

	result, scrapeErr := w.Scraper.Scrape(ctx, job, lease)
	if scrapeErr == nil {
		return w.onSuccess(ctx, job, lease, subreddit, traceID, result)
	}
	return w.onError(ctx, job, lease, subreddit, traceID, scrapeErr)
}

func (w *Worker) onSuccess(ctx context.Context, job scheduler.Job, lease *accountpool.Lease, subreddit, traceID string, result Result) error {
	if err := w.Runtime.MarkRun(w.Rng, job.ID, time.Now()); err != nil {
		w.Logger.Error("marking job cooldown", "worker_id", w.ID, "job_id", job.ID, "error", err)
	}

	lastPost, lastComment := scheduler.ExtractLastIDs(result.FullnameIDs)
	if err := w.Checkpoints.Upsert(ctx, scheduler.WorkerCheckpoint{
		WorkerID: w.ID, AccountID: lease.AccountID, LastSubreddit: subreddit,
		LastPostID: lastPost, LastCommentID: lastComment,
	}); err != nil {
		w.Logger.Error("writing final worker checkpoint", "worker_id", w.ID, "trace_id", traceID, "error", err)
	}

	if w.Metrics.ItemsScraped != nil {
		w.Metrics.ItemsScraped.WithLabelValues("submission", subreddit).Add(float64(result.ItemCount))
	}
	w.Logger.Info("job scraped", "worker_id", w.ID, "job_id", job.ID, "trace_id", traceID, "items", result.ItemCount)

	return lease.Release(ctx, true)
}

func (w *Worker) onError(ctx context.Context, job scheduler.Job, lease *accountpool.Lease, subreddit, traceID string, scrapeErr error) error {
	kind := errkind.Classify(scrapeErr.Error())
	reason := errkind.ReasonLabel(kind)
	w.Logger.Warn("job scrape failed", "worker_id", w.ID, "job_id", job.ID, "trace_id", traceID, "kind", kind, "error", scrapeErr)

	if w.Metrics.AccountErrors != nil {
		w.Metrics.AccountErrors.WithLabelValues(string(kind)).Inc()
	}

	switch kind {
	case errkind.RateLimited:
		if err := lease.Cooldown(ctx, w.Config.RateLimitCooldown.Seconds(), reason); err != nil {
			w.Logger.Error("cooling down lease after rate limit", "worker_id", w.ID, "error", err)
		}
	case errkind.AuthDenied:
		if err := lease.Quarantine(ctx, reason); err != nil {
			w.Logger.Error("quarantining lease after auth denial", "worker_id", w.ID, "error", err)
		}
	default:
		if err := lease.Release(ctx, false); err != nil {
			w.Logger.Error("releasing lease after failure", "worker_id", w.ID, "error", err)
		}
	}

	// IDs reset to null on error
	if err := w.Checkpoints.Upsert(ctx, scheduler.WorkerCheckpoint{
		WorkerID: w.ID, AccountID: lease.AccountID, LastSubreddit: subreddit,
	}); err != nil {
		w.Logger.Error("writing error worker checkpoint", "worker_id", w.ID, "error", err)
	}

	return w.sleep(ctx, w.Config.ErrorBackoff)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// labelFromParams extracts the job's declared subreddit/label for use
// as the worker checkpoint's last_subreddit, defaulting to "all" when
// absent, matching worker_orchestrator.py's last_subreddit derivation.
func labelFromParams(params json.RawMessage) string {
	if len(params) == 0 {
		return "all"
	}
	var decoded struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(params, &decoded); err != nil || decoded.Label == "" {
		return "all"
	}
	return decoded.Label
}
