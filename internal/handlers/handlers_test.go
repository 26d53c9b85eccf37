package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/dispatch"
	"github.com/hormur/event-syndicator/internal/models"
	"github.com/hormur/event-syndicator/internal/results"
)

type fakePublisher struct {
	handle dispatch.Handle
	err    error
	got    *models.PublishRequest
}

func (f *fakePublisher) Submit(ctx context.Context, req models.PublishRequest) (dispatch.Handle, error) {
	f.got = &req
	if _, err := req.Normalize(); err != nil {
		return dispatch.Handle{}, err
	}
	return f.handle, f.err
}

func (f *fakePublisher) Platforms() []models.Platform { return models.AllPlatforms }

type fakeStatus struct{ asked []models.Platform }

func (f *fakeStatus) Status(ctx context.Context, platforms ...models.Platform) (map[models.Platform]models.QueueCounts, error) {
	f.asked = platforms
	return map[models.Platform]models.QueueCounts{
		models.PlatformJDS: {Waiting: 2, Active: 1},
	}, nil
}

type fakeTester struct{}

func (fakeTester) TestPlatform(ctx context.Context, platform string) (models.JobResult, error) {
	p, err := models.ParsePlatform(platform)
	if err != nil {
		return models.JobResult{}, models.E(models.KindValidation, "test platform", err)
	}
	return models.Succeeded(p, "verified", "ok"), nil
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(ctx context.Context) error { return f.err }

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/publish-event", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPublishEvent_QueueMode(t *testing.T) {
	pub := &fakePublisher{handle: dispatch.Handle{
		Mode: config.ModeQueue,
		Jobs: map[models.Platform]string{models.PlatformJDS: "job-1"},
	}}
	h := NewHandler(pub, nil, nil, nil)

	rec := post(h.PublishEventHandler, `{"title":"Concert","date":"2025-06-01"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var body struct {
		Success bool              `json:"success"`
		Jobs    map[string]string `json:"jobs"`
	}
	decode(t, rec, &body)
	if !body.Success || body.Jobs["jds"] != "job-1" {
		t.Fatalf("unexpected body %+v", body)
	}
	if pub.got.Title != "Concert" {
		t.Fatalf("request not forwarded: %+v", pub.got)
	}
}

func TestPublishEvent_ParallelModeReportsEveryPlatform(t *testing.T) {
	pub := &fakePublisher{handle: dispatch.Handle{
		Mode: config.ModeParallel,
		Results: []models.JobResult{
			models.Succeeded(models.PlatformEventim, "verified", "ok"),
			models.Failed(models.PlatformJDS, "start", models.E(models.KindAuthentication, "login", errors.New("rejected"))),
		},
	}}
	h := NewHandler(pub, nil, nil, nil)

	rec := post(h.PublishEventHandler, `{"title":"Concert","date":"2025-06-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("partial failure must still be 200, got %d", rec.Code)
	}

	var body results.Composite
	decode(t, rec, &body)
	if len(body.Results) != len(models.AllPlatforms) {
		t.Fatalf("expected one entry per platform, got %+v", body.Results)
	}
	if body.Results[models.PlatformJDS].ErrorKind != models.KindAuthentication {
		t.Fatalf("expected authentication failure for jds, got %+v", body.Results[models.PlatformJDS])
	}
}

func TestPublishEvent_MissingFields(t *testing.T) {
	h := NewHandler(&fakePublisher{}, nil, nil, nil)

	rec := post(h.PublishEventHandler, `{"title":"Concert"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if !strings.Contains(body["error"], "title et date") {
		t.Fatalf("unexpected error %q", body["error"])
	}

	if rec := post(h.PublishEventHandler, `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestPublishEvent_DispatchFailure(t *testing.T) {
	pub := &fakePublisher{err: models.E(models.KindDispatch, "enqueue jobs", errors.New("connection closed"))}
	h := NewHandler(pub, nil, nil, nil)

	rec := post(h.PublishEventHandler, `{"title":"Concert","date":"2025-06-01"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if !strings.Contains(body["details"], "connection closed") {
		t.Fatalf("expected error detail, got %+v", body)
	}
}

func TestStatusHandler(t *testing.T) {
	status := &fakeStatus{}
	h := NewHandler(&fakePublisher{}, status, nil, nil)

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status?platform=JDS", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(status.asked) != 1 || status.asked[0] != models.PlatformJDS {
		t.Fatalf("platform filter not applied: %v", status.asked)
	}
	var body map[string]models.QueueCounts
	decode(t, rec, &body)
	if body["jds"].Waiting != 2 {
		t.Fatalf("unexpected counts %+v", body)
	}

	rec = httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status?platform=myspace", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown platform, got %d", rec.Code)
	}
}

func TestStatusHandler_DisabledWithoutQueue(t *testing.T) {
	h := NewHandler(&fakePublisher{}, nil, nil, nil)
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTestPlatformHandler(t *testing.T) {
	h := NewHandler(&fakePublisher{}, nil, fakeTester{}, nil)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/api/test/eventim", nil), map[string]string{"platform": "eventim"})
	rec := httptest.NewRecorder()
	h.TestPlatformHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res models.JobResult
	decode(t, rec, &res)
	if res.Platform != models.PlatformEventim || !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}

	req = mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/api/test/myspace", nil), map[string]string{"platform": "myspace"})
	rec = httptest.NewRecorder()
	h.TestPlatformHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown platform, got %d", rec.Code)
	}
}

func TestHealthCheckHandler(t *testing.T) {
	h := NewHandler(&fakePublisher{}, nil, nil, map[string]HealthChecker{
		"rabbitmq": fakeCheck{},
		"jobs":     fakeCheck{err: errors.New("connection refused")},
	})

	rec := httptest.NewRecorder()
	h.HealthCheckHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, rec, &body)
	if body.Status != "unhealthy" || body.Checks["rabbitmq"] != "ok" || body.Checks["jobs"] != "connection refused" {
		t.Fatalf("unexpected health body %+v", body)
	}
}
