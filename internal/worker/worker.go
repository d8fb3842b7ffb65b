// Package worker runs the claim loop: repeatedly leasing jobs from the
// job store and dispatching each to its registered handler through a flat
// {type -> handler} registry.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"hlfeeder/internal/jobstore"
	"hlfeeder/internal/models"

	"github.com/google/uuid"
)

const defaultConcurrency = 4

// Handler processes one claimed job. Implementations share this single
// signature; the Worker holds no per-type branching beyond the registry
// lookup.
type Handler interface {
	Name() models.JobType
	Handle(ctx context.Context, job models.Job) error
}

// Worker claims and dispatches jobs for one org on a poll interval. Start
// runs concurrency independent claim/dispatch goroutines rather than a
// single cooperative loop, so one slow handler never starves the rest of
// the queue.
type Worker struct {
	jobs         *jobstore.Store
	orgID        uuid.UUID
	workerID     string
	lease        time.Duration
	pollInterval time.Duration
	batchSize    int
	concurrency  int
	registry     map[models.JobType]Handler
}

func New(jobs *jobstore.Store, orgID uuid.UUID, workerID string, lease, pollInterval time.Duration, batchSize int) *Worker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Worker{
		jobs:         jobs,
		orgID:        orgID,
		workerID:     workerID,
		lease:        lease,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		concurrency:  defaultConcurrency,
		registry:     make(map[models.JobType]Handler),
	}
}

// WithConcurrency sets the number of independent claim/dispatch goroutines
// Start runs. Defaults to defaultConcurrency.
func (w *Worker) WithConcurrency(n int) *Worker {
	if n > 0 {
		w.concurrency = n
	}
	return w
}

// Register adds h to the dispatch table, keyed by its own declared type.
func (w *Worker) Register(h Handler) {
	w.registry[h.Name()] = h
}

// Start launches w.concurrency poll loops, each with its own lease-claim
// ticker, and blocks until ctx is canceled and every loop has returned.
// On cancellation the loops stop accepting new jobs; in-flight handlers
// are left to finish or be reclaimed after lease expiry.
func (w *Worker) Start(ctx context.Context) {
	log.Printf("[worker %s] starting, concurrency=%d lease=%s poll=%s", w.workerID, w.concurrency, w.lease, w.pollInterval)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.pollLoop(ctx, slot)
		}(i)
	}
	wg.Wait()

	log.Printf("[worker %s] stopped", w.workerID)
}

func (w *Worker) pollLoop(ctx context.Context, slot int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	lockerID := fmt.Sprintf("%s-%d", w.workerID, slot)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx, lockerID)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context, lockerID string) {
	claimed, err := w.jobs.Claim(ctx, w.orgID, lockerID, w.batchSize, w.lease)
	if err != nil {
		log.Printf("[worker %s] claim failed: %v", lockerID, err)
		return
	}

	for _, job := range claimed {
		w.dispatch(ctx, lockerID, job)
	}
}

func (w *Worker) dispatch(ctx context.Context, lockerID string, job models.Job) {
	handler, ok := w.registry[job.Type]
	if !ok {
		err := fmt.Errorf("no handler registered for job type %q", job.Type)
		log.Printf("[worker %s] job %d: %v", lockerID, job.ID, err)
		w.fail(ctx, lockerID, job, err)
		return
	}

	if err := handler.Handle(ctx, job); err != nil {
		log.Printf("[worker %s] job %d (%s) failed: %v", lockerID, job.ID, job.Type, err)
		w.fail(ctx, lockerID, job, err)
		return
	}

	if err := w.jobs.Complete(ctx, job.ID); err != nil {
		log.Printf("[worker %s] job %d: complete bookkeeping failed: %v", lockerID, job.ID, err)
	}
}

// fail routes a handler error to fast-fail or backoff-retry depending on
// whether it's in the taxonomy's terminal class.
func (w *Worker) fail(ctx context.Context, lockerID string, job models.Job, err error) {
	var failErr error
	if jobstore.IsFatal(err) {
		failErr = w.jobs.FailFast(ctx, job.ID, err)
	} else {
		failErr = w.jobs.Fail(ctx, job.ID, err)
	}
	if failErr != nil {
		log.Printf("[worker %s] job %d: fail bookkeeping failed: %v", lockerID, job.ID, failErr)
	}
}
