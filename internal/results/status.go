package results

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/models"
	"github.com/hormur/event-syndicator/internal/storage"
)

// DepthReader reports broker-side queue depth.
type DepthReader interface {
	Depth(ctx context.Context, p models.Platform) (messages, consumers int, err error)
}

// StatusService reports per-platform queue counts.
type StatusService struct {
	store     storage.JobStore
	depth     DepthReader
	platforms []models.Platform
}

// NewStatusService creates a StatusService. depth may be nil.
func NewStatusService(store storage.JobStore, depth DepthReader, platforms []models.Platform) *StatusService {
	return &StatusService{store: store, depth: depth, platforms: platforms}
}

// Status returns counts for the given platforms, or for every configured
// platform when none is given. Waiting comes from the broker when it answers.
func (s *StatusService) Status(ctx context.Context, platforms ...models.Platform) (map[models.Platform]models.QueueCounts, error) {
	if len(platforms) == 0 {
		platforms = s.platforms
	}

	out := make(map[models.Platform]models.QueueCounts, len(platforms))
	for _, p := range platforms {
		counts, err := s.store.Counts(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to count jobs for %s: %w", p, err)
		}

		if s.depth != nil {
			messages, consumers, err := s.depth.Depth(ctx, p)
			if err != nil {
				log.Warn().Err(err).Str("platform", string(p)).Msg("Queue depth unavailable")
			} else {
				counts.Waiting = messages
				counts.Consumers = consumers
			}
		}
		out[p] = counts
	}
	return out, nil
}
