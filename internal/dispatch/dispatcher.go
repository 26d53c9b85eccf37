// Package dispatch fans a publish request out into one task per platform.
package dispatch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/metrics"
	"github.com/hormur/event-syndicator/internal/models"
)

// Runner executes one platform workflow. It reports failures in the result.
type Runner interface {
	Run(ctx context.Context, platform models.Platform, req models.PublishRequest) models.JobResult
}

// Handle is what Submit returns. Queue mode fills Jobs, parallel mode fills
// Results with one entry per platform.
type Handle struct {
	Mode    string
	Jobs    map[models.Platform]string
	Results []models.JobResult
}

// Strategy turns a normalized request into platform tasks.
type Strategy interface {
	Mode() string
	Dispatch(ctx context.Context, platforms []models.Platform, req models.PublishRequest) (Handle, error)
}

// Dispatcher validates requests and hands them to its strategy.
type Dispatcher struct {
	platforms []models.Platform
	strategy  Strategy
}

func New(platforms []models.Platform, strategy Strategy) *Dispatcher {
	return &Dispatcher{
		platforms: append([]models.Platform(nil), platforms...),
		strategy:  strategy,
	}
}

// Platforms returns the configured target platforms.
func (d *Dispatcher) Platforms() []models.Platform {
	return append([]models.Platform(nil), d.platforms...)
}

// Mode is the dispatch mode of the underlying strategy.
func (d *Dispatcher) Mode() string { return d.strategy.Mode() }

// Submit normalizes req and creates one task per platform. A validation error
// is returned before any task exists.
func (d *Dispatcher) Submit(ctx context.Context, req models.PublishRequest) (Handle, error) {
	normalized, err := req.Normalize()
	if err != nil {
		metrics.ObserveDispatch(d.strategy.Mode(), err)
		return Handle{}, err
	}

	log.Info().
		Str("title", normalized.Title).
		Str("date", normalized.Date).
		Str("mode", d.strategy.Mode()).
		Int("platforms", len(d.platforms)).
		Msg("📥 Dispatching publish request")

	h, err := d.strategy.Dispatch(ctx, d.platforms, normalized)
	metrics.ObserveDispatch(d.strategy.Mode(), err)
	return h, err
}
