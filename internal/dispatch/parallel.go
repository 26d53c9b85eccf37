package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/models"
)

// ParallelStrategy runs every platform concurrently and waits for all of them.
type ParallelStrategy struct {
	runner Runner
}

func NewParallelStrategy(runner Runner) *ParallelStrategy {
	return &ParallelStrategy{runner: runner}
}

func (s *ParallelStrategy) Mode() string { return config.ModeParallel }

// Dispatch never fails: each task's outcome lands in its own slot of Results.
// The group has no shared context so one task can never cancel another.
func (s *ParallelStrategy) Dispatch(ctx context.Context, platforms []models.Platform, req models.PublishRequest) (Handle, error) {
	// A caller that goes away must not abort forms half way; step timeouts
	// bound every run.
	ctx = context.WithoutCancel(ctx)
	results := make([]models.JobResult, len(platforms))

	var g errgroup.Group
	for i, p := range platforms {
		i, p := i, p
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("platform", string(p)).Msg("Platform task panicked")
					results[i] = models.Failed(p, "", fmt.Errorf("task panicked: %v", r))
				}
			}()
			results[i] = s.runner.Run(ctx, p, req)
			return nil
		})
	}
	g.Wait()

	return Handle{Mode: s.Mode(), Results: results}, nil
}
