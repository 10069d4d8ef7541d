// Package scheduler implements C4: the job catalog cache, job runtime
// state, job/worker checkpoint stores, and the ancillary
// aging-weighted queue, grounded in
// scraping/reddit/worker_orchestrator.py and scraping/reddit/job_queue.py.
package scheduler

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
)

// Job is one declarative work unit from the catalog.
type Job struct {
	ID     string          `json:"id"`
	Weight float64         `json:"weight"`
	Params json.RawMessage `json:"params"`
}

type scraperGroup struct {
	ScraperID string `json:"scraper_id"`
	Jobs      []Job  `json:"jobs"`
}

type catalogFile struct {
	ScraperConfigs []scraperGroup `json:"scraper_configs"`
}

// Catalog caches the job catalog file, re-reading it every pollInterval
// or when the cache is empty.
type Catalog struct {
	path         string
	scraperMatch func(scraperID string) bool
	pollInterval time.Duration

	mu       sync.Mutex
	jobs     []Job
	loadedAt time.Time
}

// NewCatalog creates a Catalog that filters jobs whose scraper_id
// matches the given predicate (typically a prefix/equality check
// against the configured core target).
func NewCatalog(path string, pollInterval time.Duration, scraperMatch func(scraperID string) bool) *Catalog {
	return &Catalog{path: path, scraperMatch: scraperMatch, pollInterval: pollInterval}
}

// Jobs returns the cached job list, refreshing from disk first if the
// cache is stale or empty.
func (c *Catalog) Jobs() ([]Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.jobs) == 0 || time.Since(c.loadedAt) >= c.pollInterval {
		if err := c.reload(); err != nil {
			return nil, err
		}
	}
	out := make([]Job, len(c.jobs))
	copy(out, c.jobs)
	return out, nil
}

func (c *Catalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.jobs = nil
			c.loadedAt = time.Now()
			return nil
		}
		return fmt.Errorf("reading catalog %s: %w", c.path, err)
	}

	var cf catalogFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("parsing catalog %s: %w", c.path, err)
	}

	var jobs []Job
	for _, group := range cf.ScraperConfigs {
		if c.scraperMatch != nil && !c.scraperMatch(group.ScraperID) {
			continue
		}
		for _, j := range group.Jobs {
			if j.Weight <= 0 {
				j.Weight = 1.0
			}
			jobs = append(jobs, j)
		}
	}
	c.jobs = jobs
	c.loadedAt = time.Now()
	return nil
}

// PrefixMatch returns a scraperMatch predicate that accepts exact
// equality or a dotted prefix (e.g. "Reddit" matches "Reddit.custom").
func PrefixMatch(target string) func(string) bool {
	return func(scraperID string) bool {
		return scraperID == target || strings.HasPrefix(scraperID, target+".")
	}
}

// Select picks one job from candidates with probability proportional
// to its weight. It returns false if candidates is empty.
func Select(rng *rand.Rand, candidates []Job) (Job, bool) {
	if len(candidates) == 0 {
		return Job{}, false
	}
	total := 0.0
	for _, j := range candidates {
		total += weightOf(j)
	}
	if total <= 0 {
		return candidates[rng.Intn(len(candidates))], true
	}
	r := rng.Float64() * total
	upto := 0.0
	for _, j := range candidates {
		upto += weightOf(j)
		if upto >= r {
			return j, true
		}
	}
	return candidates[len(candidates)-1], true
}

func weightOf(j Job) float64 {
	if j.Weight <= 0 {
		return 1.0
	}
	return j.Weight
}
