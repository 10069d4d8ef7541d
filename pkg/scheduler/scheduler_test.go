package scheduler

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aniruddhsingh7901/redditharvester/internal/platform"
)

func writeCatalogFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}
}

func TestCatalogFiltersByScraperID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraping_config.json")
	writeCatalogFile(t, path, `{
		"scraper_configs": [
			{"scraper_id": "Reddit.custom", "jobs": [{"id": "j1", "weight": 2, "params": {}}]},
			{"scraper_id": "X.custom", "jobs": [{"id": "j2", "weight": 1, "params": {}}]}
		]
	}`)

	cat := NewCatalog(path, time.Minute, PrefixMatch("Reddit"))
	jobs, err := cat.Jobs()
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Errorf("expected only j1, got %+v", jobs)
	}
}

func TestCatalogMissingFileYieldsEmpty(t *testing.T) {
	cat := NewCatalog(filepath.Join(t.TempDir(), "missing.json"), time.Minute, PrefixMatch("Reddit"))
	jobs, err := cat.Jobs()
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected empty catalog, got %+v", jobs)
	}
}

func TestSelectWeightedNeverPicksZeroWeightExclusively(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	candidates := []Job{{ID: "heavy", Weight: 100}, {ID: "light", Weight: 0.001}}
	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		job, ok := Select(rng, candidates)
		if !ok {
			t.Fatal("expected a selection")
		}
		counts[job.ID]++
	}
	if counts["heavy"] == 0 {
		t.Error("expected the heavily-weighted job to be picked at least once")
	}
	if counts["heavy"] < counts["light"] {
		t.Errorf("expected heavy weight to dominate selection, got %+v", counts)
	}
}

func TestRuntimeStateReadyAndMarkRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job_state.json")
	rs, err := NewRuntimeState(path, 20*time.Minute, 30*time.Minute)
	if err != nil {
		t.Fatalf("new runtime state: %v", err)
	}

	now := time.Now()
	if !rs.IsReady("unknown-job", now) {
		t.Error("absent entries must be ready")
	}

	rng := rand.New(rand.NewSource(1))
	if err := rs.MarkRun(rng, "job-1", now); err != nil {
		t.Fatalf("mark run: %v", err)
	}
	if rs.IsReady("job-1", now) {
		t.Error("job-1 should not be ready immediately after MarkRun")
	}
	if rs.IsReady("job-1", now.Add(10*time.Minute)) {
		t.Error("job-1 should still be cooling down after only 10 minutes")
	}
	if !rs.IsReady("job-1", now.Add(31*time.Minute)) {
		t.Error("job-1 should be ready again after the max cooldown window")
	}

	// Reloading from disk must preserve the persisted cooldown.
	reloaded, err := NewRuntimeState(path, 20*time.Minute, 30*time.Minute)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.IsReady("job-1", now) {
		t.Error("reloaded state should still reflect the persisted cooldown")
	}
}

func TestJobCheckpointRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	db, err := platform.Open(dbPath, platform.StoreCheckpoints)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	cp := NewJobCheckpoints(db)
	ctx := context.Background()
	payload := map[string]any{"after": "t3_abc", "page": 3}

	if err := cp.Save(ctx, "job-1", payload); err != nil {
		t.Fatalf("save: %v", err)
	}

	var loaded map[string]any
	found, err := cp.Load(ctx, "job-1", &loaded)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected checkpoint to be found")
	}
	if loaded["after"] != "t3_abc" || loaded["page"] != float64(3) {
		t.Errorf("round-trip mismatch: %+v", loaded)
	}
}

func TestWorkerCheckpointUpsertAndExtractIDs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "accounts.db")
	db, err := platform.Open(dbPath, platform.StoreAccounts)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	wc := NewWorkerCheckpoints(db)
	ctx := context.Background()

	if err := wc.Upsert(ctx, WorkerCheckpoint{WorkerID: "w1", AccountID: "acct-1", LastSubreddit: "golang"}); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}
	cp, found, err := wc.Get(ctx, "w1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if cp.LastPostID != "" {
		t.Errorf("expected no post id yet, got %q", cp.LastPostID)
	}

	lastPost, lastComment := ExtractLastIDs([]string{"t3_abc", "t1_def", "t3_xyz"})
	if lastPost != "t3_xyz" || lastComment != "t1_def" {
		t.Errorf("unexpected extracted ids: post=%s comment=%s", lastPost, lastComment)
	}

	if err := wc.Upsert(ctx, WorkerCheckpoint{WorkerID: "w1", AccountID: "acct-1", LastSubreddit: "golang",
		LastPostID: lastPost, LastCommentID: lastComment}); err != nil {
		t.Fatalf("final upsert: %v", err)
	}
	cp, found, err = wc.Get(ctx, "w1")
	if err != nil || !found {
		t.Fatalf("get after final upsert: found=%v err=%v", found, err)
	}
	if cp.LastPostID != "t3_xyz" || cp.LastCommentID != "t1_def" {
		t.Errorf("expected final ids to persist, got %+v", cp)
	}
}

func TestQueueEnqueueDequeueAck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	rng := rand.New(rand.NewSource(1))
	q, err := NewQueue(path, rng)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	payload, _ := json.Marshal(map[string]string{"subreddit": "golang"})
	if err := q.Enqueue(QueuedJob{ID: "job-1", Weight: 1, Payload: payload}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, ok, err := q.Dequeue()
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if job.ID != "job-1" {
		t.Errorf("expected job-1, got %s", job.ID)
	}

	acked, err := q.Ack("job-1")
	if err != nil || !acked {
		t.Fatalf("ack: acked=%v err=%v", acked, err)
	}

	qlen, inflight, err := q.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if qlen != 0 || inflight != 0 {
		t.Errorf("expected (0, 0) after ack, got (%d, %d)", qlen, inflight)
	}
}

func TestQueueNackRequeuesWithBackoffAndAttempts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	rng := rand.New(rand.NewSource(2))
	q, err := NewQueue(path, rng)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	if err := q.Enqueue(QueuedJob{ID: "job-1", Weight: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, ok, err := q.Dequeue()
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}

	nacked, err := q.Nack(job.ID, true, 5*time.Second)
	if err != nil || !nacked {
		t.Fatalf("nack: nacked=%v err=%v", nacked, err)
	}

	job2, ok, err := q.Dequeue()
	if err != nil || !ok {
		t.Fatalf("dequeue after nack: ok=%v err=%v", ok, err)
	}
	if job2.Attempts != 1 {
		t.Errorf("expected attempts=1 after nack, got %d", job2.Attempts)
	}
	if job2.EnqueuedAt <= epochSeconds(time.Now()) {
		t.Errorf("expected enqueued_at pushed into the future by backoff, got %v", job2.EnqueuedAt)
	}
}
