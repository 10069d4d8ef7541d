package scheduler

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// jobRuntime is the per-job ephemeral bookkeeping.
type jobRuntime struct {
	LastRunTS      float64 `json:"last_run_ts"`
	NextEligibleTS float64 `json:"next_eligible_ts"`
}

// RuntimeState is the JSON-file-backed map of job_id -> runtime
// bookkeeping, persisted atomically (write-temp-then-rename).
type RuntimeState struct {
	path        string
	cooldownMin time.Duration
	cooldownMax time.Duration
	mu          sync.Mutex
	state       map[string]jobRuntime
}

// NewRuntimeState loads (or initializes) job runtime state from path.
func NewRuntimeState(path string, cooldownMin, cooldownMax time.Duration) (*RuntimeState, error) {
	rs := &RuntimeState{path: path, cooldownMin: cooldownMin, cooldownMax: cooldownMax, state: map[string]jobRuntime{}}
	if err := rs.load(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RuntimeState) load() error {
	data, err := os.ReadFile(rs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading job state %s: %w", rs.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &rs.state)
}

// IsReady reports whether job id is eligible to run: now >=
// next_eligible_ts (absent entries are always ready).
func (rs *RuntimeState) IsReady(id string, now time.Time) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	entry, ok := rs.state[id]
	if !ok {
		return true
	}
	return epochSeconds(now) >= entry.NextEligibleTS
}

// ReadyJobs filters candidates down to those IsReady accepts.
func (rs *RuntimeState) ReadyJobs(candidates []Job, now time.Time) []Job {
	out := make([]Job, 0, len(candidates))
	for _, j := range candidates {
		if rs.IsReady(j.ID, now) {
			out = append(out, j)
		}
	}
	return out
}

// MarkRun records that id ran at now, setting next_eligible_ts to
// now + Uniform(cooldownMin, cooldownMax), and persists the state
// file atomically. A single rng is threaded in by the caller so
// tests can make the cooldown window deterministic.
func (rs *RuntimeState) MarkRun(rng *rand.Rand, id string, now time.Time) error {
	rs.mu.Lock()
	nowSecs := epochSeconds(now)
	cooldown := rs.cooldownMin.Seconds() + rng.Float64()*(rs.cooldownMax.Seconds()-rs.cooldownMin.Seconds())
	rs.state[id] = jobRuntime{LastRunTS: nowSecs, NextEligibleTS: nowSecs + cooldown}
	snapshot := cloneState(rs.state)
	rs.mu.Unlock()

	return writeJSONAtomic(rs.path, snapshot)
}

func cloneState(m map[string]jobRuntime) map[string]jobRuntime {
	out := make(map[string]jobRuntime, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// writeJSONAtomic marshals v and writes it to path via a temp file
// followed by a rename, so a reader never observes a partial write.
func writeJSONAtomic(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming temp file into %s: %w", path, err)
	}
	return nil
}
