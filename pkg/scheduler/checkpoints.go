package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobCheckpoints is the job_id -> opaque JSON payload durable map C4
// exposes for the external scraper to resume pagination. Upserts are
// serialized and the latest write wins.
type JobCheckpoints struct {
	db *sql.DB
}

// NewJobCheckpoints wraps an already-migrated checkpoints database
// handle.
func NewJobCheckpoints(db *sql.DB) *JobCheckpoints {
	return &JobCheckpoints{db: db}
}

// Save persists payload for jobID, overwriting any previous value.
func (c *JobCheckpoints) Save(ctx context.Context, jobID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint for %s: %w", jobID, err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO checkpoints(job_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		jobID, string(data), epochSeconds(time.Now()))
	if err != nil {
		return fmt.Errorf("saving checkpoint for %s: %w", jobID, err)
	}
	return nil
}

// Load returns the most recent payload for jobID into dest, or
// reports found=false if none exists. save_progress(job, x) followed
// by load_progress(job) returns x exactly.
func (c *JobCheckpoints) Load(ctx context.Context, jobID string, dest any) (bool, error) {
	var payload string
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE job_id = ?`, jobID).Scan(&payload)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("loading checkpoint for %s: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return false, fmt.Errorf("decoding checkpoint for %s: %w", jobID, err)
	}
	return true, nil
}

// WorkerCheckpoint is a per-worker resume hint.
type WorkerCheckpoint struct {
	WorkerID      string
	AccountID     string
	LastSubreddit string
	LastPostID    string
	LastCommentID string
	UpdatedAt     float64
}

// WorkerCheckpoints is the worker_id -> resume-hint durable map,
// updated at job start, job end, and on error
type WorkerCheckpoints struct {
	db *sql.DB
}

// NewWorkerCheckpoints wraps an already-migrated accounts database
// handle; worker checkpoints live alongside accounts/proxies.
func NewWorkerCheckpoints(db *sql.DB) *WorkerCheckpoints {
	return &WorkerCheckpoints{db: db}
}

// Upsert writes a worker checkpoint, replacing any previous row for
// the same worker_id. IDs are best-effort: absent values are stored
// as NULL rather than overwriting a previously-known ID with a blank
// string.
func (w *WorkerCheckpoints) Upsert(ctx context.Context, cp WorkerCheckpoint) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO checkpoints(worker_id, account_id, last_subreddit, last_post_id, last_comment_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			account_id = excluded.account_id,
			last_subreddit = excluded.last_subreddit,
			last_post_id = excluded.last_post_id,
			last_comment_id = excluded.last_comment_id,
			updated_at = excluded.updated_at`,
		cp.WorkerID, nullableStr(cp.AccountID), nullableStr(cp.LastSubreddit),
		nullableStr(cp.LastPostID), nullableStr(cp.LastCommentID), epochSeconds(time.Now()))
	if err != nil {
		return fmt.Errorf("upserting worker checkpoint %s: %w", cp.WorkerID, err)
	}
	return nil
}

// Get returns the current checkpoint for workerID, or found=false if
// none exists.
func (w *WorkerCheckpoints) Get(ctx context.Context, workerID string) (WorkerCheckpoint, bool, error) {
	var cp WorkerCheckpoint
	var accountID, subreddit, postID, commentID sql.NullString
	err := w.db.QueryRowContext(ctx, `
		SELECT worker_id, account_id, last_subreddit, last_post_id, last_comment_id, updated_at
		FROM checkpoints WHERE worker_id = ?`, workerID).
		Scan(&cp.WorkerID, &accountID, &subreddit, &postID, &commentID, &cp.UpdatedAt)
	switch {
	case err == sql.ErrNoRows:
		return WorkerCheckpoint{}, false, nil
	case err != nil:
		return WorkerCheckpoint{}, false, fmt.Errorf("reading worker checkpoint %s: %w", workerID, err)
	}
	cp.AccountID, cp.LastSubreddit, cp.LastPostID, cp.LastCommentID =
		accountID.String, subreddit.String, postID.String, commentID.String
	return cp, true, nil
}

// ExtractLastIDs derives the last-seen post and comment fullnames
// from a list of Reddit fullname IDs by matching t3_/t1_ prefixes,
// ported from worker_orchestrator.py's _extract_last_ids.
func ExtractLastIDs(fullnameIDs []string) (lastPostID, lastCommentID string) {
	for _, id := range fullnameIDs {
		switch {
		case strings.HasPrefix(id, "t3_"):
			lastPostID = id
		case strings.HasPrefix(id, "t1_"):
			lastCommentID = id
		}
	}
	return lastPostID, lastCommentID
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
