package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hormur/event-syndicator/internal/models"
)

// ErrJobNotFound is returned when a job does not exist or can no longer move
// to the requested state.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists JobRecords for the durable queue.
type JobStore interface {
	// Create stores every record or none of them.
	Create(ctx context.Context, records []models.JobRecord) error
	Delete(ctx context.Context, ids []string) error
	Get(ctx context.Context, id string) (models.JobRecord, error)
	// MarkActive claims an enqueued job. A job left active by a crashed
	// worker can be claimed again.
	MarkActive(ctx context.Context, id string) error
	// Finish stores the result and moves the job to completed or failed.
	Finish(ctx context.Context, id string, res models.JobResult) error
	Counts(ctx context.Context, platform models.Platform) (models.QueueCounts, error)
	// Prune removes terminal jobs last updated before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	HealthCheck(ctx context.Context) error
}

func terminalState(res models.JobResult) models.JobState {
	if res.Success {
		return models.JobCompleted
	}
	return models.JobFailed
}
