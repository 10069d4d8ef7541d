package scheduler

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"
)

// QueuedJob is one entry in the ancillary weighted job queue.
type QueuedJob struct {
	ID         string          `json:"id"`
	Weight     float64         `json:"weight"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt float64         `json:"enqueued_at"`
}

type queueFile struct {
	Queue    []QueuedJob          `json:"queue"`
	Inflight map[string]QueuedJob `json:"inflight"`
}

// Queue is the optional JSON-file-backed job queue used when an
// external producer wants to push work rather than have workers pull
// from the catalog, grounded in scraping/reddit/job_queue.py.
type Queue struct {
	path string
	mu   sync.Mutex
	rng  *rand.Rand
}

// NewQueue creates a Queue backed by path, seeding it with an empty
// queue/inflight file if absent. rng lets tests make dequeue's
// weighted draw deterministic.
func NewQueue(path string, rng *rand.Rand) (*Queue, error) {
	q := &Queue{path: path, rng: rng}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeJSONAtomic(path, queueFile{Queue: []QueuedJob{}, Inflight: map[string]QueuedJob{}}); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Queue) load() (queueFile, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return queueFile{}, fmt.Errorf("reading queue %s: %w", q.path, err)
	}
	var qf queueFile
	if err := json.Unmarshal(data, &qf); err != nil {
		return queueFile{}, fmt.Errorf("parsing queue %s: %w", q.path, err)
	}
	if qf.Inflight == nil {
		qf.Inflight = map[string]QueuedJob{}
	}
	return qf, nil
}

// Enqueue appends job to the queue, stamping enqueued_at to now.
func (q *Queue) Enqueue(job QueuedJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	qf, err := q.load()
	if err != nil {
		return err
	}
	job.EnqueuedAt = epochSeconds(time.Now())
	qf.Queue = append(qf.Queue, job)
	return writeJSONAtomic(q.path, qf)
}

// Reprioritize updates job_id's weight wherever it currently lives
// (queue or inflight), returning whether it was found.
func (q *Queue) Reprioritize(jobID string, newWeight float64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qf, err := q.load()
	if err != nil {
		return false, err
	}
	for i := range qf.Queue {
		if qf.Queue[i].ID == jobID {
			qf.Queue[i].Weight = newWeight
			return true, writeJSONAtomic(q.path, qf)
		}
	}
	if job, ok := qf.Inflight[jobID]; ok {
		job.Weight = newWeight
		qf.Inflight[jobID] = job
		return true, writeJSONAtomic(q.path, qf)
	}
	return false, nil
}

// Dequeue picks one queued job with probability proportional to
// max(0, weight * age_minutes) (age floored at 1 minute) and moves it
// to inflight. It returns found=false on an empty queue.
func (q *Queue) Dequeue() (QueuedJob, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qf, err := q.load()
	if err != nil {
		return QueuedJob{}, false, err
	}
	if len(qf.Queue) == 0 {
		return QueuedJob{}, false, nil
	}

	idx := q.weightedPickIndex(qf.Queue)
	job := qf.Queue[idx]
	qf.Queue = append(qf.Queue[:idx], qf.Queue[idx+1:]...)
	qf.Inflight[job.ID] = job

	if err := writeJSONAtomic(q.path, qf); err != nil {
		return QueuedJob{}, false, err
	}
	return job, true, nil
}

func (q *Queue) weightedPickIndex(jobs []QueuedJob) int {
	now := epochSeconds(time.Now())
	scores := make([]float64, len(jobs))
	total := 0.0
	for i, j := range jobs {
		weight := j.Weight
		if weight <= 0 {
			weight = 1.0
		}
		ageMinutes := (now - j.EnqueuedAt) / 60.0
		if ageMinutes < 1.0 {
			ageMinutes = 1.0
		}
		score := weight * ageMinutes
		if score < 0 {
			score = 0
		}
		scores[i] = score
		total += score
	}
	if total <= 0 {
		return 0
	}
	r := q.rng.Float64() * total
	upto := 0.0
	for i, s := range scores {
		upto += s
		if upto >= r {
			return i
		}
	}
	return len(jobs) - 1
}

// Ack removes jobID from inflight, returning whether it was present.
func (q *Queue) Ack(jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qf, err := q.load()
	if err != nil {
		return false, err
	}
	if _, ok := qf.Inflight[jobID]; !ok {
		return false, nil
	}
	delete(qf.Inflight, jobID)
	return true, writeJSONAtomic(q.path, qf)
}

// Nack removes jobID from inflight and, if requeue is true,
// re-enqueues it with attempts incremented and enqueued_at pushed out
// by backoff.
func (q *Queue) Nack(jobID string, requeue bool, backoff time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qf, err := q.load()
	if err != nil {
		return false, err
	}
	job, ok := qf.Inflight[jobID]
	if !ok {
		return false, nil
	}
	delete(qf.Inflight, jobID)
	if requeue {
		job.Attempts++
		job.EnqueuedAt = epochSeconds(time.Now()) + backoff.Seconds()
		qf.Queue = append(qf.Queue, job)
	}
	return true, writeJSONAtomic(q.path, qf)
}

// Size returns (len(queue), len(inflight)).
func (q *Queue) Size() (int, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qf, err := q.load()
	if err != nil {
		return 0, 0, err
	}
	return len(qf.Queue), len(qf.Inflight), nil
}
