package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hormur/event-syndicator/internal/assets"
	"github.com/hormur/event-syndicator/internal/browser/browsertest"
	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/models"
)

const testSecret = "s3cret-pass"

type fakeImages struct {
	mu    sync.Mutex
	calls int
	asset *assets.Asset
}

func (f *fakeImages) Transcode(ctx context.Context, sourceURL string, spec assets.Spec) *assets.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.asset
}

func (f *fakeImages) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeArtifacts struct {
	mu      sync.Mutex
	uploads []models.Platform
}

func (f *fakeArtifacts) UploadScreenshot(ctx context.Context, p models.Platform, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, p)
	return "http://minio.local/publish-screenshots/" + string(p) + ".png", nil
}

func testCredentials() config.CredentialStore {
	var creds []config.Credential
	for _, p := range models.AllPlatforms {
		creds = append(creds, config.Credential{Platform: p, Login: "ops@hormur.com", Secret: testSecret})
	}
	return config.NewCredentialStore(creds...)
}

func testRequest(t *testing.T, imageURL string) models.PublishRequest {
	t.Helper()
	req, err := models.PublishRequest{
		Title:       "Test",
		Description: "Concert acoustique dans un atelier d'artiste.",
		Date:        "2025-06-01",
		ImageURL:    imageURL,
		EventURL:    "https://hormur.com/events/42",
	}.Normalize()
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	return req
}

func testOptions() Options {
	return Options{
		NavigationTimeout: time.Second,
		StepTimeout:       time.Second,
		SubmitTimeout:     time.Second,
	}
}

func newTestEngine(launcher *browsertest.Launcher, images Images, opts Options) *Engine {
	return NewEngine(launcher, images, testCredentials(), DefaultRegistry(), opts)
}

func onlySession(t *testing.T, l *browsertest.Launcher) *browsertest.Session {
	t.Helper()
	sessions := l.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	return sessions[0]
}

func TestRun_PublishesWithImage(t *testing.T) {
	for _, p := range []models.Platform{models.PlatformEventim, models.PlatformJDS} {
		t.Run(string(p), func(t *testing.T) {
			launcher := &browsertest.Launcher{}
			images := &fakeImages{asset: &assets.Asset{Data: []byte("jpeg"), ContentType: "image/jpeg"}}
			engine := newTestEngine(launcher, images, testOptions())

			res := engine.Run(context.Background(), p, testRequest(t, "https://img.example/poster.png"))
			if !res.Success {
				t.Fatalf("expected success, got %+v", res)
			}
			if res.State != string(StateVerified) {
				t.Fatalf("expected verified state, got %q", res.State)
			}
			if !res.ImageAttached {
				t.Fatalf("expected image to be attached")
			}

			s := onlySession(t, launcher)
			if s.Count(browsertest.OpUpload) != 1 {
				t.Fatalf("expected one upload, got %d", s.Count(browsertest.OpUpload))
			}
			if s.Closed() != 1 {
				t.Fatalf("expected session closed once, got %d", s.Closed())
			}
		})
	}
}

func TestRun_NoImageSkipsPipeline(t *testing.T) {
	launcher := &browsertest.Launcher{}
	images := &fakeImages{asset: &assets.Asset{Data: []byte("jpeg")}}
	engine := newTestEngine(launcher, images, testOptions())

	res := engine.Run(context.Background(), models.PlatformEventim, testRequest(t, ""))
	if !res.Success || res.State != string(StateVerified) {
		t.Fatalf("expected verified success, got %+v", res)
	}
	if images.Calls() != 0 {
		t.Fatalf("image pipeline must not be called without imageUrl")
	}
	if res.ImageAttached {
		t.Fatalf("expected no attachment")
	}

	s := onlySession(t, launcher)
	if s.Count(browsertest.OpUpload) != 0 {
		t.Fatalf("expected no upload")
	}
	if !s.Did(browsertest.OpClick, `button[type="submit"]`) {
		t.Fatalf("expected submit click")
	}
}

func TestRun_UnreachableImageStillPublishes(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	unreachable := srv.URL + "/poster.png"
	srv.Close()

	launcher := &browsertest.Launcher{}
	engine := newTestEngine(launcher, assets.NewPipeline(nil, nil), testOptions())

	res := engine.Run(context.Background(), models.PlatformJDS, testRequest(t, unreachable))
	if !res.Success || res.State != string(StateVerified) {
		t.Fatalf("expected verified success, got %+v", res)
	}
	if res.ImageAttached {
		t.Fatalf("expected no attachment")
	}
	if onlySession(t, launcher).Count(browsertest.OpUpload) != 0 {
		t.Fatalf("expected no upload for unreachable image")
	}
}

func TestRun_AuthenticationFailure(t *testing.T) {
	launcher := &browsertest.Launcher{
		Script: func(s *browsertest.Session) {
			s.Fail(browsertest.OpWaitURL, "", errors.New("still on login page"))
		},
	}
	engine := newTestEngine(launcher, nil, testOptions())

	res := engine.Run(context.Background(), models.PlatformEventim, testRequest(t, ""))
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.ErrorKind != models.KindAuthentication {
		t.Fatalf("expected authentication error, got %q (%s)", res.ErrorKind, res.Error)
	}
	if res.State != string(StateStart) {
		t.Fatalf("expected failure at start, got %q", res.State)
	}

	s := onlySession(t, launcher)
	if s.Did(browsertest.OpNavigate, Eventim().FormURL) {
		t.Fatalf("form must not be opened after failed login")
	}
	if s.Closed() != 1 {
		t.Fatalf("expected session closed once, got %d", s.Closed())
	}
}

func TestRun_SecretNeverInResult(t *testing.T) {
	launcher := &browsertest.Launcher{
		Script: func(s *browsertest.Session) {
			s.Fail(browsertest.OpType, `input[type="password"]`, errors.New("node detached"))
		},
	}
	engine := newTestEngine(launcher, nil, testOptions())

	res := engine.Run(context.Background(), models.PlatformEventim, testRequest(t, ""))
	if res.Success {
		t.Fatalf("expected failure")
	}
	if strings.Contains(res.Error, testSecret) || strings.Contains(res.Message, testSecret) {
		t.Fatalf("secret leaked into result: %+v", res)
	}
}

func TestRun_MissingControlTimesOut(t *testing.T) {
	launcher := &browsertest.Launcher{
		Script: func(s *browsertest.Session) {
			s.Fail(browsertest.OpWait, `input[name="eventName"]`, context.DeadlineExceeded)
		},
	}
	engine := newTestEngine(launcher, nil, testOptions())

	res := engine.Run(context.Background(), models.PlatformEventim, testRequest(t, ""))
	if res.ErrorKind != models.KindTimeout {
		t.Fatalf("expected timeout error, got %q (%s)", res.ErrorKind, res.Error)
	}
	if res.State != string(StateAuthenticated) {
		t.Fatalf("expected failure after authentication, got %q", res.State)
	}
}

func TestRun_PanicClosesSession(t *testing.T) {
	launcher := &browsertest.Launcher{
		Script: func(s *browsertest.Session) {
			s.Panic(browsertest.OpClick, `input[value="free"]`)
		},
	}
	engine := newTestEngine(launcher, nil, testOptions())

	res := engine.Run(context.Background(), models.PlatformEventim, testRequest(t, ""))
	if res.Success {
		t.Fatalf("expected failure after panic")
	}
	if res.State != string(StateEventFormReady) {
		t.Fatalf("expected failure while populating, got %q", res.State)
	}
	if s := onlySession(t, launcher); s.Closed() != 1 {
		t.Fatalf("expected session closed once, got %d", s.Closed())
	}
}

func TestRun_DescriptionCarriesFooter(t *testing.T) {
	cases := []struct {
		platform  models.Platform
		signature string
	}{
		{models.PlatformEventim, "🎭 BILLETTERIE OFFICIELLE : HORMUR.COM 🎭"},
		{models.PlatformJDS, "📍 RÉSERVATION OFFICIELLE SUR HORMUR.COM"},
	}

	for _, tc := range cases {
		t.Run(string(tc.platform), func(t *testing.T) {
			launcher := &browsertest.Launcher{}
			engine := newTestEngine(launcher, nil, testOptions())
			req := testRequest(t, "")

			if res := engine.Run(context.Background(), tc.platform, req); !res.Success {
				t.Fatalf("expected success, got %+v", res)
			}

			filled, ok := onlySession(t, launcher).Find(browsertest.OpFill, `textarea[name="description"]`)
			if !ok {
				t.Fatalf("description was not filled")
			}
			if !strings.HasPrefix(filled.Value, req.Description) {
				t.Fatalf("description must start with caller text, got %q", filled.Value)
			}
			if !strings.Contains(filled.Value, tc.signature) {
				t.Fatalf("footer missing from %q", filled.Value)
			}
			if !strings.Contains(filled.Value, req.EventURL) {
				t.Fatalf("eventUrl missing from %q", filled.Value)
			}
		})
	}
}

func TestRun_ImportVariant(t *testing.T) {
	launcher := &browsertest.Launcher{}
	images := &fakeImages{asset: &assets.Asset{Data: []byte("jpeg")}}
	engine := newTestEngine(launcher, images, testOptions())
	req := testRequest(t, "https://img.example/poster.png")

	res := engine.Run(context.Background(), models.PlatformAllEvents, req)
	if !res.Success || res.State != string(StateVerified) {
		t.Fatalf("expected verified success, got %+v", res)
	}
	if images.Calls() != 0 || res.ImageAttached {
		t.Fatalf("import variant must not attach images")
	}

	s := onlySession(t, launcher)
	typed, ok := s.Find(browsertest.OpType, `input[name="eventUrl"]`)
	if !ok || typed.Value != req.EventURL {
		t.Fatalf("expected canonical url to be imported, got %+v", typed)
	}
	if !s.Did(browsertest.OpClick, buttonText("Publish")) {
		t.Fatalf("expected publish click")
	}
	if s.Count(browsertest.OpFill) != 0 {
		t.Fatalf("import variant fills no form fields")
	}
}

func verifyingRegistry() Registry {
	def := JDS()
	def.SuccessSelector = ".alert-success"
	r := DefaultRegistry()
	r.Register(def)
	return r
}

func TestRun_VerificationIsSoftByDefault(t *testing.T) {
	launcher := &browsertest.Launcher{
		Script: func(s *browsertest.Session) {
			s.Fail(browsertest.OpWait, ".alert-success", context.DeadlineExceeded)
		},
	}
	engine := NewEngine(launcher, nil, testCredentials(), verifyingRegistry(), testOptions())

	res := engine.Run(context.Background(), models.PlatformJDS, testRequest(t, ""))
	if !res.Success {
		t.Fatalf("expected soft verification to succeed, got %+v", res)
	}
	if !strings.Contains(res.Message, "not observed") {
		t.Fatalf("expected unverified note in message, got %q", res.Message)
	}
}

func TestRun_StrictVerificationFails(t *testing.T) {
	launcher := &browsertest.Launcher{
		Script: func(s *browsertest.Session) {
			s.Fail(browsertest.OpWait, ".alert-success", context.DeadlineExceeded)
		},
	}
	opts := testOptions()
	opts.StrictVerify = true
	artifacts := &fakeArtifacts{}
	opts.Artifacts = artifacts
	engine := NewEngine(launcher, nil, testCredentials(), verifyingRegistry(), opts)

	res := engine.Run(context.Background(), models.PlatformJDS, testRequest(t, ""))
	if res.Success {
		t.Fatalf("expected strict verification failure")
	}
	if res.ErrorKind != models.KindSubmission || res.State != string(StateSubmitted) {
		t.Fatalf("expected submission error after submit, got %q at %q", res.ErrorKind, res.State)
	}
	if res.ScreenshotURL == "" || len(artifacts.uploads) != 1 {
		t.Fatalf("expected failure screenshot to be stored, got %+v", res)
	}
}

func TestRun_MissingCredentialsNeverLaunches(t *testing.T) {
	launcher := &browsertest.Launcher{}
	engine := NewEngine(launcher, nil, config.NewCredentialStore(), DefaultRegistry(), testOptions())

	res := engine.Run(context.Background(), models.PlatformJDS, testRequest(t, ""))
	if res.Success || res.ErrorKind != models.KindAuthentication {
		t.Fatalf("expected authentication failure, got %+v", res)
	}
	if len(launcher.Sessions()) != 0 {
		t.Fatalf("expected no browser launch")
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	launcher := &browsertest.Launcher{LaunchErr: errors.New("chrome not found")}
	engine := newTestEngine(launcher, nil, testOptions())

	res := engine.Run(context.Background(), models.PlatformEventim, testRequest(t, ""))
	if res.Success || res.ErrorKind != models.KindNavigation {
		t.Fatalf("expected navigation failure, got %+v", res)
	}
}

func TestRun_UnknownPlatform(t *testing.T) {
	engine := newTestEngine(&browsertest.Launcher{}, nil, testOptions())
	if engine.Supports("myspace") {
		t.Fatalf("unexpected platform support")
	}
	res := engine.Run(context.Background(), "myspace", testRequest(t, ""))
	if res.Success || res.ErrorKind != models.KindValidation {
		t.Fatalf("expected validation failure, got %+v", res)
	}
}
