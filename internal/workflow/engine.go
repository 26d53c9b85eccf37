package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/assets"
	"github.com/hormur/event-syndicator/internal/browser"
	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/metrics"
	"github.com/hormur/event-syndicator/internal/models"
)

// Images turns a source URL into an uploadable asset, or nil.
type Images interface {
	Transcode(ctx context.Context, sourceURL string, spec assets.Spec) *assets.Asset
}

// Artifacts keeps failure screenshots and returns where they can be found.
type Artifacts interface {
	UploadScreenshot(ctx context.Context, platform models.Platform, data []byte) (string, error)
}

// Options bounds every wait of a run.
type Options struct {
	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	SubmitTimeout     time.Duration
	// StrictVerify fails a run whose success selector never shows up.
	StrictVerify bool
	Artifacts    Artifacts
}

func (o *Options) setDefaults() {
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 10 * time.Second
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 30 * time.Second
	}
}

// Engine runs platform definitions. It holds no per-run state and is safe for
// concurrent use; each Run owns its own browser session.
type Engine struct {
	launcher browser.Launcher
	images   Images
	creds    config.CredentialStore
	registry Registry
	opts     Options
}

// NewEngine creates an Engine. images may be nil, in which case no image is ever attached.
func NewEngine(launcher browser.Launcher, images Images, creds config.CredentialStore, registry Registry, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		launcher: launcher,
		images:   images,
		creds:    creds,
		registry: registry,
		opts:     opts,
	}
}

// Supports reports whether a definition exists for p.
func (e *Engine) Supports(p models.Platform) bool {
	_, ok := e.registry[p]
	return ok
}

// Run publishes req on one platform. It never returns an error: every failure,
// including a panic, ends up in a failed JobResult. The browser session is
// closed before Run returns.
func (e *Engine) Run(ctx context.Context, platform models.Platform, req models.PublishRequest) (res models.JobResult) {
	start := time.Now()
	logger := log.With().Str("platform", string(platform)).Logger()

	defer func() {
		metrics.ObserveResult(res, time.Since(start))
		ev := logger.Info()
		if !res.Success {
			ev = logger.Error().Str("error", res.Error).Str("error_kind", string(res.ErrorKind))
		}
		ev.Str("state", res.State).
			Bool("image_attached", res.ImageAttached).
			Dur("duration_ms", time.Since(start)).
			Msg("Workflow finished")
	}()

	def, ok := e.registry[platform]
	if !ok {
		return models.Failed(platform, string(StateStart),
			models.E(models.KindValidation, "run workflow", fmt.Errorf("no workflow for platform %q", platform)))
	}

	cred, ok := e.creds.Get(platform)
	if !ok {
		return models.Failed(platform, string(StateStart),
			models.E(models.KindAuthentication, "load credentials", errors.New("no credentials configured")))
	}

	session, err := e.launcher.Launch(ctx)
	if err != nil {
		return models.Failed(platform, string(StateStart), models.E(models.KindNavigation, "launch browser", err))
	}

	r := &run{
		engine:  e,
		def:     def,
		session: session,
		logger:  logger,
		state:   StateStart,
		in: Input{
			Request:     req,
			Credential:  cred,
			Description: def.Description(req),
		},
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Str("state", string(r.state)).Msg("Workflow panicked")
			res = models.Failed(platform, string(r.state), fmt.Errorf("workflow panicked: %v", p))
		}
		if !res.Success {
			res.ScreenshotURL = e.captureFailure(session, platform, logger)
		}
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close browser session")
		}
	}()

	logger.Info().Str("title", req.Title).Msg("Starting workflow")
	return r.execute(ctx)
}

func (e *Engine) captureFailure(session browser.Session, platform models.Platform, logger zerolog.Logger) string {
	if e.opts.Artifacts == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.StepTimeout)
	defer cancel()

	shot, err := session.Screenshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to capture failure screenshot")
		return ""
	}
	url, err := e.opts.Artifacts.UploadScreenshot(ctx, platform, shot)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to store failure screenshot")
		return ""
	}
	return url
}

// run is the state of one workflow execution.
type run struct {
	engine  *Engine
	def     Definition
	session browser.Session
	logger  zerolog.Logger
	in      Input

	state      State
	attached   bool
	unverified bool
}

func (r *run) advance(s State) {
	r.state = s
	r.logger.Debug().Str("state", string(s)).Msg("Workflow state reached")
}

func (r *run) fail(err error) models.JobResult {
	res := models.Failed(r.def.Platform, string(r.state), err)
	res.ImageAttached = r.attached
	return res
}

func (r *run) execute(ctx context.Context) models.JobResult {
	if err := r.authenticate(ctx); err != nil {
		return r.fail(err)
	}
	r.advance(StateAuthenticated)

	if err := r.openForm(ctx); err != nil {
		return r.fail(err)
	}
	r.advance(StateEventFormReady)

	if err := r.do(ctx, r.def.Fields); err != nil {
		return r.fail(models.StepError(models.KindNavigation, "populate fields", err))
	}
	r.advance(StateFieldsPopulated)

	if r.attachAsset(ctx) {
		r.attached = true
		r.advance(StateAssetAttached)
	}

	if err := r.submit(ctx); err != nil {
		return r.fail(err)
	}
	r.advance(StateSubmitted)

	if err := r.verify(ctx); err != nil {
		return r.fail(err)
	}
	r.advance(StateVerified)

	msg := fmt.Sprintf("Event published on %s", r.def.Name)
	if r.unverified {
		msg += " (success indicator not observed)"
	}
	res := models.Succeeded(r.def.Platform, string(StateVerified), msg)
	res.ImageAttached = r.attached
	return res
}

func (r *run) authenticate(ctx context.Context) error {
	if err := r.navigate(ctx, r.def.LoginURL); err != nil {
		return models.E(models.KindAuthentication, "open login page", err)
	}
	r.dismissConsent(ctx)

	from, err := r.session.Location(ctx)
	if err != nil {
		from = r.def.LoginURL
	}
	if err := r.do(ctx, r.def.Login); err != nil {
		return models.E(models.KindAuthentication, "submit credentials", err)
	}

	wctx, cancel := context.WithTimeout(ctx, r.engine.opts.NavigationTimeout)
	defer cancel()
	if err := r.session.WaitURLChange(wctx, from); err != nil {
		return models.E(models.KindAuthentication, "await login", err)
	}
	return nil
}

func (r *run) openForm(ctx context.Context) error {
	if err := r.navigate(ctx, r.def.FormURL); err != nil {
		return models.StepError(models.KindNavigation, "open event form", err)
	}
	r.dismissConsent(ctx)

	if r.def.FormReady == "" {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, r.engine.opts.NavigationTimeout)
	defer cancel()
	if err := r.session.WaitVisible(wctx, r.def.FormReady); err != nil {
		return models.StepError(models.KindNavigation, "await event form", err)
	}
	return nil
}

// attachAsset reports whether an image was uploaded. Nothing here fails the run.
func (r *run) attachAsset(ctx context.Context) bool {
	src := r.in.Request.ImageURL
	if src == "" || r.def.Upload == "" || r.engine.images == nil {
		return false
	}

	asset := r.engine.images.Transcode(ctx, src, r.def.ImageSpec)
	if asset == nil {
		return false
	}

	path, cleanup, err := asset.WriteTemp(fmt.Sprintf("%s-image-*.jpg", r.def.Platform))
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stage image, continuing without attachment")
		return false
	}
	defer cleanup()

	sctx, cancel := context.WithTimeout(ctx, r.engine.opts.StepTimeout)
	defer cancel()
	if err := r.session.Upload(sctx, r.def.Upload, path); err != nil {
		r.logger.Warn().Err(err).Msg("Image upload failed, continuing without attachment")
		return false
	}
	return true
}

func (r *run) submit(ctx context.Context) error {
	from, err := r.session.Location(ctx)
	if err != nil {
		from = r.def.FormURL
	}
	if err := r.do(ctx, r.def.Submit); err != nil {
		return models.StepError(models.KindSubmission, "trigger publish", err)
	}
	if !r.def.AwaitNavigation {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, r.engine.opts.SubmitTimeout)
	defer cancel()
	if err := r.session.WaitURLChange(wctx, from); err != nil {
		return models.StepError(models.KindSubmission, "await publish", err)
	}
	return nil
}

func (r *run) verify(ctx context.Context) error {
	if r.def.SuccessSelector == "" {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, r.engine.opts.SubmitTimeout)
	defer cancel()
	err := r.session.WaitVisible(wctx, r.def.SuccessSelector)
	if err == nil {
		return nil
	}
	if r.engine.opts.StrictVerify {
		return models.E(models.KindSubmission, "verify publish", err)
	}
	r.unverified = true
	r.logger.Warn().Err(err).Msg("Success indicator not observed after publish")
	return nil
}

func (r *run) navigate(ctx context.Context, url string) error {
	nctx, cancel := context.WithTimeout(ctx, r.engine.opts.NavigationTimeout)
	defer cancel()
	return r.session.Navigate(nctx, url)
}

// dismissConsent clicks the consent button if it is on the page.
func (r *run) dismissConsent(ctx context.Context) {
	if r.def.Consent == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, r.engine.opts.StepTimeout)
	defer cancel()

	present, err := r.session.Exists(sctx, r.def.Consent)
	if err != nil || !present {
		return
	}
	if err := r.session.Click(sctx, r.def.Consent); err != nil {
		r.logger.Debug().Err(err).Msg("Consent dialog could not be dismissed")
	}
}

// do executes steps in order, each bounded by the step timeout.
func (r *run) do(ctx context.Context, steps []Step) error {
	for _, st := range steps {
		if err := r.step(ctx, st); err != nil {
			if st.Optional {
				r.logger.Debug().Err(err).Stringer("step", st).Msg("Optional step skipped")
				continue
			}
			return err
		}
	}
	return nil
}

func (r *run) step(ctx context.Context, st Step) error {
	sctx, cancel := context.WithTimeout(ctx, r.engine.opts.StepTimeout)
	defer cancel()

	value := ""
	if st.Value != nil {
		value = st.Value(r.in)
	}

	switch st.Action {
	case ActionClick:
		return r.session.Click(sctx, st.Selector)
	case ActionType:
		return r.session.Type(sctx, st.Selector, value)
	case ActionFill:
		return r.session.Fill(sctx, st.Selector, value)
	case ActionSelect:
		return r.session.Select(sctx, st.Selector, value)
	case ActionWait:
		return r.session.WaitVisible(sctx, st.Selector)
	default:
		return fmt.Errorf("unknown action %q on %s", st.Action, st.Selector)
	}
}
