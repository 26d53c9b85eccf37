// Package handlers serves the HTTP surface of the syndicator.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/dispatch"
	"github.com/hormur/event-syndicator/internal/models"
	"github.com/hormur/event-syndicator/internal/results"
)

// maxBodyBytes caps the publish payload.
const maxBodyBytes = 1 << 20

// Publisher accepts publish requests. *dispatch.Dispatcher implements it.
type Publisher interface {
	Submit(ctx context.Context, req models.PublishRequest) (dispatch.Handle, error)
	Platforms() []models.Platform
}

// StatusReader reports per-platform queue counts.
type StatusReader interface {
	Status(ctx context.Context, platforms ...models.Platform) (map[models.Platform]models.QueueCounts, error)
}

// PlatformTester runs the synthetic single-platform check.
type PlatformTester interface {
	TestPlatform(ctx context.Context, platform string) (models.JobResult, error)
}

// HealthChecker is anything /health should probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds the dependencies of every route.
type Handler struct {
	publisher Publisher
	status    StatusReader
	tester    PlatformTester
	checks    map[string]HealthChecker
}

// NewHandler creates a Handler. status is nil when jobs are not queued,
// which disables the status route.
func NewHandler(publisher Publisher, status StatusReader, tester PlatformTester, checks map[string]HealthChecker) *Handler {
	if checks == nil {
		checks = map[string]HealthChecker{}
	}
	return &Handler{
		publisher: publisher,
		status:    status,
		tester:    tester,
		checks:    checks,
	}
}

// PublishEventHandler receives the event webhook and dispatches it to every platform.
func (h *Handler) PublishEventHandler(w http.ResponseWriter, r *http.Request) {
	status, body := h.Publish(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	writeJSON(w, status, body)
}

// Publish decodes a request body and submits it. It returns the HTTP status and
// the response payload so other drivers can reuse it.
func (h *Handler) Publish(ctx context.Context, body io.Reader) (int, interface{}) {
	var req models.PublishRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid publish payload")
		return http.StatusBadRequest, errorBody("Corps de requête invalide", err)
	}

	handle, err := h.publisher.Submit(ctx, req)
	switch {
	case models.IsKind(err, models.KindValidation):
		log.Warn().Err(err).Msg("Publish request rejected")
		return http.StatusBadRequest, errorBody("Données manquantes: title et date sont requis", err)
	case err != nil:
		log.Error().Err(err).Msg("❌ Failed to dispatch publish request")
		return http.StatusInternalServerError, errorBody("Erreur lors de la publication", err)
	}

	if handle.Mode == config.ModeQueue {
		log.Info().Int("jobs", len(handle.Jobs)).Msg("✅ Publish request queued")
		return http.StatusAccepted, map[string]interface{}{
			"success": true,
			"message": "Événement ajouté aux files d'attente",
			"jobs":    handle.Jobs,
		}
	}

	composite := results.Aggregate(h.publisher.Platforms(), handle.Results)
	log.Info().
		Int("succeeded", composite.Succeeded).
		Int("failed", composite.Failed).
		Msg("✅ Publish request processed")
	return http.StatusOK, composite
}

// StatusHandler returns queue counts, for every platform or for ?platform=.
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("status is only available in %s mode", config.ModeQueue),
		})
		return
	}

	var platforms []models.Platform
	if q := strings.TrimSpace(r.URL.Query().Get("platform")); q != "" {
		p, err := models.ParsePlatform(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("Plateforme inconnue", err))
			return
		}
		platforms = append(platforms, p)
	}

	counts, err := h.status.Status(r.Context(), platforms...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read queue status")
		writeJSON(w, http.StatusInternalServerError, errorBody("Statut indisponible", err))
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// TestPlatformHandler publishes a synthetic event on one platform and returns its result.
func (h *Handler) TestPlatformHandler(w http.ResponseWriter, r *http.Request) {
	platform := mux.Vars(r)["platform"]

	res, err := h.tester.TestPlatform(r.Context(), platform)
	switch {
	case models.IsKind(err, models.KindValidation):
		writeJSON(w, http.StatusBadRequest, errorBody("Plateforme inconnue", err))
		return
	case err != nil:
		log.Error().Err(err).Str("platform", platform).Msg("Platform test failed to start")
		writeJSON(w, http.StatusInternalServerError, errorBody("Erreur lors du test", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HealthCheckHandler returns health status
func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for name, c := range h.checks {
		if err := c.HealthCheck(ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	health := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK
	if !healthy {
		health["status"] = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

func errorBody(message string, err error) map[string]string {
	return map[string]string{
		"error":   message,
		"details": err.Error(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
