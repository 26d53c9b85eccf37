package results

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tjarratt/babble"

	"github.com/hormur/event-syndicator/internal/models"
)

// Runner executes a single platform workflow.
type Runner interface {
	Run(ctx context.Context, platform models.Platform, req models.PublishRequest) models.JobResult
}

// markerWords tag test listings so they are easy to find and delete.
var markerWords = []string{
	"atelier", "salon", "jardin", "grenier", "terrasse", "cave",
	"loft", "péniche", "verrière", "cour", "patio", "galerie",
}

// TestRequest is the synthetic event used for manual platform checks.
func TestRequest(now time.Time) models.PublishRequest {
	marker := babble.Babbler{Count: 2, Separator: "-", Words: markerWords}
	return models.PublishRequest{
		Title:       fmt.Sprintf("Test Hormur - %s [%s]", now.Format("02/01/2006 15:04:05"), marker.Babble()),
		Description: "Événement de test - Ne pas réserver",
		Date:        now.Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339),
		Time:        "20:00",
		Venue:       "Lieu Test",
		Address:     "Paris",
		EventURL:    "https://hormur.com/test",
		Category:    "Concert",
	}
}

// Trigger runs one platform workflow directly, bypassing the dispatcher.
type Trigger struct {
	runner    Runner
	platforms []models.Platform
	now       func() time.Time
}

func NewTrigger(runner Runner, platforms []models.Platform) *Trigger {
	return &Trigger{runner: runner, platforms: platforms, now: time.Now}
}

// TestPlatform publishes a fresh synthetic request on platform. Each call gets
// its own browser session.
func (t *Trigger) TestPlatform(ctx context.Context, platform string) (models.JobResult, error) {
	p, err := models.ParsePlatform(platform)
	if err != nil {
		return models.JobResult{}, models.E(models.KindValidation, "test platform", err)
	}
	if !t.enabled(p) {
		return models.JobResult{}, models.E(models.KindValidation, "test platform", fmt.Errorf("platform %q is not enabled", p))
	}

	req, err := TestRequest(t.now()).Normalize()
	if err != nil {
		return models.JobResult{}, err
	}

	log.Info().Str("platform", string(p)).Str("title", req.Title).Msg("🧪 Running platform test")
	return t.runner.Run(context.WithoutCancel(ctx), p, req), nil
}

func (t *Trigger) enabled(p models.Platform) bool {
	for _, known := range t.platforms {
		if known == p {
			return true
		}
	}
	return false
}
