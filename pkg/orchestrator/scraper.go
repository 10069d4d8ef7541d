package orchestrator

import (
	"context"

	"github.com/aniruddhsingh7901/redditharvester/pkg/accountpool"
	"github.com/aniruddhsingh7901/redditharvester/pkg/scheduler"
)

// Scraper is the external collaborator boundary :
// the concrete Reddit fetch/parse logic lives outside this module.
// A worker passes one selected job to Scrape and derives checkpoint
// state from the returned fullname IDs.
type Scraper interface {
	Scrape(ctx context.Context, job scheduler.Job, lease *accountpool.Lease) (Result, error)
}

// Result is what one successful Scrape invocation reports back to the
// worker: the Reddit fullname IDs of everything it produced (so the
// worker can derive last_post_id/last_comment_id) and a subreddit
// label. The worker checkpoint's last_subreddit comes from the job
// params' "label" field, not from Subreddit.
type Result struct {
	Subreddit   string
	FullnameIDs []string
	ItemCount   int
}
