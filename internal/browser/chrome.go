package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/metrics"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ChromeOptions configures the headless Chrome processes.
type ChromeOptions struct {
	ExecPath     string
	Headless     bool
	UserAgent    string
	PollInterval time.Duration
}

// ChromeLauncher starts one Chrome process per session.
type ChromeLauncher struct {
	opts ChromeOptions
}

// NewChromeLauncher creates a launcher.
func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &ChromeLauncher{opts: opts}
}

// Launch starts a fresh browser. The browser outlives ctx; only Close stops it.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(l.opts.UserAgent),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		poll:        l.opts.PollInterval,
	}
	metrics.SessionOpened()

	// The first Run allocates the browser with the context it is given, so it
	// must run on the session context itself. ctx only bounds the startup.
	stop := context.AfterFunc(ctx, func() { s.Close() })
	err := chromedp.Run(s.ctx, chromedp.EmulateViewport(1920, 1080))
	if !stop() {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", ctx.Err())
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Debug().Bool("headless", l.opts.Headless).Msg("Browser session started")
	return s, nil
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	poll        time.Duration

	closeOnce sync.Once
	closeErr  error
}

// run executes actions on the browser, bounded by the caller's ctx. The
// browser must already be allocated; cancelling a derived context then only
// ends the actions, not the browser.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%v: %w", err, ctx.Err())
	}
	return err
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

func by(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// locateJS evaluates to the element matched by selector, or null.
func locateJS(selector string) string {
	sel, _ := json.Marshal(selector)
	if isXPath(selector) {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", sel)
	}
	return fmt.Sprintf("document.querySelector(%s)", sel)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector, by(selector))); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, by(selector), chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return len(nodes) > 0, nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, by(selector), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Type(ctx context.Context, selector, text string) error {
	if err := s.run(ctx, chromedp.SendKeys(selector, text, by(selector), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

const fillJS = `(function(el, value) {
	if (!el) return false;
	const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
	if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	v, _ := json.Marshal(value)
	return s.evalOnElement(ctx, "fill", selector, fmt.Sprintf(fillJS, locateJS(selector), v))
}

const selectJS = `(function(el, option) {
	if (!el || !el.options) return false;
	const opt = Array.from(el.options).find(o => o.value === option || o.textContent.trim() === option);
	if (!opt) return false;
	el.value = opt.value;
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`

func (s *chromeSession) Select(ctx context.Context, selector, option string) error {
	o, _ := json.Marshal(option)
	return s.evalOnElement(ctx, "select "+option+" in", selector, fmt.Sprintf(selectJS, locateJS(selector), o))
}

func (s *chromeSession) evalOnElement(ctx context.Context, op, selector, expr string) error {
	var ok bool
	err := s.run(ctx,
		chromedp.WaitVisible(selector, by(selector)),
		chromedp.Evaluate(expr, &ok),
	)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, selector, err)
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", op, selector, ErrNotFound)
	}
	return nil
}

func (s *chromeSession) Upload(ctx context.Context, selector string, paths ...string) error {
	if err := s.run(ctx, chromedp.SetUploadFiles(selector, paths, by(selector))); err != nil {
		return fmt.Errorf("upload to %s: %w", selector, err)
	}
	return nil
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (s *chromeSession) WaitURLChange(ctx context.Context, from string) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		loc, err := s.Location(ctx)
		if err == nil && loc != from {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("page stayed on %s: %w", from, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 80)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
		metrics.SessionClosed()
		log.Debug().Msg("Browser session closed")
	})
	return s.closeErr
}
