// Package queue schedules indexing jobs for background workers.
//
// A Scheduler only moves jobs; outcome bookkeeping lives in the status
// registry, written by the handler. Handlers own their errors, so every
// delivered job is acknowledged exactly once regardless of outcome.
package queue

import (
	"context"
	"errors"
	"sync"

	"ragportal/pkg/domain"
)

// Handler processes one ingest job. It must record success or failure in the
// status registry itself; the scheduler does not retry.
type Handler func(ctx context.Context, job domain.IngestJob)

// Scheduler hands jobs to background workers.
type Scheduler interface {
	// Enqueue durably schedules the job. Once Enqueue returns nil the job
	// will be delivered to a worker even across a process restart, for
	// backends with durable storage.
	Enqueue(ctx context.Context, job domain.IngestJob) error
	// Start launches concurrency workers that run handler until ctx is
	// canceled. Start returns immediately.
	Start(ctx context.Context, concurrency int, handler Handler)
}

// Local is an in-process scheduler backed by a buffered channel. Jobs do not
// survive a restart; it exists for single-node setups and tests.
type Local struct {
	jobs chan domain.IngestJob
	once sync.Once
}

// NewLocal creates a scheduler that holds at most buffer queued jobs.
func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 256
	}
	return &Local{jobs: make(chan domain.IngestJob, buffer)}
}

func (l *Local) Enqueue(ctx context.Context, job domain.IngestJob) error {
	select {
	case l.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("job queue full")
	}
}

func (l *Local) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	l.once.Do(func() {
		for i := 0; i < concurrency; i++ {
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case job := <-l.jobs:
						handler(ctx, job)
					}
				}
			}()
		}
	})
}
