// Package browsertest provides a scripted browser.Session for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hormur/event-syndicator/internal/browser"
)

// Operation names used for recording and failure injection.
const (
	OpNavigate   = "navigate"
	OpWait       = "wait"
	OpExists     = "exists"
	OpClick      = "click"
	OpType       = "type"
	OpFill       = "fill"
	OpSelect     = "select"
	OpUpload     = "upload"
	OpWaitURL    = "wait-url"
	OpScreenshot = "screenshot"
)

// Action is one recorded call.
type Action struct {
	Op       string
	Selector string
	Value    string
}

type key struct{ op, selector string }

// Session records every call and fails the ones it was told to.
type Session struct {
	mu      sync.Mutex
	actions []Action
	fail    map[key]error
	panics  map[key]bool
	present map[string]bool
	url     string
	closed  int
}

// NewSession returns an empty scripted session.
func NewSession() *Session {
	return &Session{
		fail:    make(map[key]error),
		panics:  make(map[key]bool),
		present: make(map[string]bool),
		url:     "about:blank",
	}
}

// Fail makes op on selector return err. An empty selector matches every selector.
func (s *Session) Fail(op, selector string, err error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[key{op, selector}] = err
	return s
}

// Panic makes op on selector panic.
func (s *Session) Panic(op, selector string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics[key{op, selector}] = true
	return s
}

// Present makes Exists report true for selector.
func (s *Session) Present(selector string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present[selector] = true
	return s
}

func (s *Session) record(ctx context.Context, op, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed > 0 {
		return fmt.Errorf("%s %s: session closed", op, selector)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.actions = append(s.actions, Action{Op: op, Selector: selector, Value: value})

	if s.panics[key{op, selector}] || s.panics[key{op, ""}] {
		panic(fmt.Sprintf("scripted panic on %s %s", op, selector))
	}
	if err, ok := s.fail[key{op, selector}]; ok {
		return fmt.Errorf("%s %s: %w", op, selector, err)
	}
	if err, ok := s.fail[key{op, ""}]; ok {
		return fmt.Errorf("%s %s: %w", op, selector, err)
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.record(ctx, OpNavigate, url, ""); err != nil {
		return err
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.record(ctx, OpWait, selector, "")
}

func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	if err := s.record(ctx, OpExists, selector, ""); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present[selector], nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.record(ctx, OpClick, selector, "")
}

func (s *Session) Type(ctx context.Context, selector, text string) error {
	return s.record(ctx, OpType, selector, text)
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.record(ctx, OpFill, selector, value)
}

func (s *Session) Select(ctx context.Context, selector, option string) error {
	return s.record(ctx, OpSelect, selector, option)
}

func (s *Session) Upload(ctx context.Context, selector string, paths ...string) error {
	value := ""
	if len(paths) > 0 {
		value = paths[0]
	}
	return s.record(ctx, OpUpload, selector, value)
}

func (s *Session) Location(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *Session) WaitURLChange(ctx context.Context, from string) error {
	return s.record(ctx, OpWaitURL, from, "")
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.record(ctx, OpScreenshot, "", ""); err != nil {
		return nil, err
	}
	return []byte("png"), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Closed reports how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Actions returns a copy of the recorded calls.
func (s *Session) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.actions...)
}

// Did reports whether op was called on selector.
func (s *Session) Did(op, selector string) bool {
	_, ok := s.Find(op, selector)
	return ok
}

// Find returns the first recorded op on selector.
func (s *Session) Find(op, selector string) (Action, bool) {
	for _, a := range s.Actions() {
		if a.Op == op && a.Selector == selector {
			return a, true
		}
	}
	return Action{}, false
}

// Count returns how many times op was called.
func (s *Session) Count(op string) int {
	n := 0
	for _, a := range s.Actions() {
		if a.Op == op {
			n++
		}
	}
	return n
}

// Launcher hands out scripted sessions and keeps them for inspection.
type Launcher struct {
	mu sync.Mutex
	// Script prepares each new session before it is returned.
	Script    func(*Session)
	LaunchErr error
	sessions  []*Session
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	s := NewSession()
	if l.Script != nil {
		l.Script(s)
	}
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}
