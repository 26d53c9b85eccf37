package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hormur/event-syndicator/internal/broker"
	"github.com/hormur/event-syndicator/internal/models"
	"github.com/hormur/event-syndicator/internal/storage"
)

// JobSource delivers queued jobs for one platform to handler until ctx ends.
type JobSource interface {
	Consume(ctx context.Context, platform models.Platform, handler broker.Handler) error
}

// WorkerPool runs a fixed number of workers per platform queue. Each worker
// holds at most one job, and so at most one browser session, at a time.
type WorkerPool struct {
	source     JobSource
	store      storage.JobStore
	runner     Runner
	platforms  []models.Platform
	workers    int
	retryDelay time.Duration
}

func NewWorkerPool(source JobSource, store storage.JobStore, runner Runner, platforms []models.Platform, workersPerPlatform int) *WorkerPool {
	if workersPerPlatform < 1 {
		workersPerPlatform = 1
	}
	return &WorkerPool{
		source:     source,
		store:      store,
		runner:     runner,
		platforms:  platforms,
		workers:    workersPerPlatform,
		retryDelay: 5 * time.Second,
	}
}

// Run blocks until ctx is cancelled and every worker has returned. A job in
// flight at cancellation runs to completion.
func (wp *WorkerPool) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, p := range wp.platforms {
		for id := 1; id <= wp.workers; id++ {
			p, id := p, id
			g.Go(func() error {
				wp.work(ctx, p, id)
				return nil
			})
		}
	}

	log.Info().
		Int("platforms", len(wp.platforms)).
		Int("workers_per_platform", wp.workers).
		Msg("Worker pool started")

	err := g.Wait()
	log.Info().Msg("Worker pool stopped")
	return err
}

func (wp *WorkerPool) work(ctx context.Context, p models.Platform, id int) {
	logger := log.With().Str("platform", string(p)).Int("worker", id).Logger()

	for {
		err := wp.source.Consume(ctx, p, wp.handler(p))
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Dur("retry_in", wp.retryDelay).Msg("Consumer stopped, retrying")

		if !wp.sleep(ctx, wp.retryDelay) {
			return
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func (wp *WorkerPool) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (wp *WorkerPool) handler(p models.Platform) broker.Handler {
	return func(parent context.Context, msg broker.Message) error {
		// Shutdown must not abort a workflow half way through a form.
		ctx := context.WithoutCancel(parent)

		if msg.Platform != p {
			log.Warn().
				Str("job_id", msg.JobID).
				Str("platform", string(p)).
				Str("message_platform", string(msg.Platform)).
				Msg("Job routed to the wrong queue, running it for this queue's platform")
		}

		if err := wp.store.MarkActive(ctx, msg.JobID); err != nil {
			if errors.Is(err, storage.ErrJobNotFound) {
				log.Warn().Str("job_id", msg.JobID).Msg("Job no longer claimable, skipping")
				return nil
			}
			// The message goes straight back to the queue; back off so a store
			// outage does not turn into a redelivery loop.
			log.Error().Err(err).Str("job_id", msg.JobID).Dur("retry_in", wp.retryDelay).Msg("Failed to claim job")
			wp.sleep(parent, wp.retryDelay)
			return fmt.Errorf("failed to claim job %s: %w", msg.JobID, err)
		}

		res := wp.runner.Run(ctx, p, msg.Payload)

		if err := wp.store.Finish(ctx, msg.JobID, res); err != nil && !errors.Is(err, storage.ErrJobNotFound) {
			// The workflow already ran; requeueing would publish the event twice.
			log.Error().Err(err).Str("job_id", msg.JobID).Msg("Failed to store job result")
		}
		return nil
	}
}
