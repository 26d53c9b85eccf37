package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/models"
	"github.com/hormur/event-syndicator/internal/storage"
)

// Queue is the durable broker side of queue mode.
type Queue interface {
	Enqueue(ctx context.Context, records []models.JobRecord) error
}

// QueueStrategy persists one JobRecord per platform and enqueues them all.
type QueueStrategy struct {
	store storage.JobStore
	queue Queue
}

func NewQueueStrategy(store storage.JobStore, queue Queue) *QueueStrategy {
	return &QueueStrategy{store: store, queue: queue}
}

func (s *QueueStrategy) Mode() string { return config.ModeQueue }

// Dispatch is all-or-nothing: if the broker rejects the batch the stored
// records are removed again and a dispatch error is returned.
func (s *QueueStrategy) Dispatch(ctx context.Context, platforms []models.Platform, req models.PublishRequest) (Handle, error) {
	records := make([]models.JobRecord, 0, len(platforms))
	for _, p := range platforms {
		records = append(records, models.NewJobRecord(p, req))
	}

	if err := s.store.Create(ctx, records); err != nil {
		return Handle{}, models.E(models.KindDispatch, "persist jobs", err)
	}

	if err := s.queue.Enqueue(ctx, records); err != nil {
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := s.store.Delete(cleanupCtx, ids); delErr != nil {
			log.Error().Err(delErr).Strs("job_ids", ids).Msg("Failed to remove jobs after enqueue failure")
		}
		return Handle{}, models.E(models.KindDispatch, "enqueue jobs", err)
	}

	jobs := make(map[models.Platform]string, len(records))
	for _, rec := range records {
		jobs[rec.Platform] = rec.ID
		log.Info().
			Str("platform", string(rec.Platform)).
			Str("job_id", rec.ID).
			Msg("Job enqueued")
	}

	return Handle{Mode: s.Mode(), Jobs: jobs}, nil
}
