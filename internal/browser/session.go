// Package browser owns headless browser sessions. A Session belongs to exactly
// one workflow execution and must be closed on every exit path.
package browser

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("element not found")

// Session drives one isolated browser instance and its page.
//
// Selectors are CSS selectors or XPath expressions (starting with "/" or "(").
// Every blocking call is bounded by ctx.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// Type sends keystrokes to the element.
	Type(ctx context.Context, selector, text string) error
	// Fill sets the element value directly and fires input and change events.
	Fill(ctx context.Context, selector, value string) error
	// Select picks an option of a <select> by value or label.
	Select(ctx context.Context, selector, option string) error
	Upload(ctx context.Context, selector string, paths ...string) error
	Location(ctx context.Context) (string, error)
	// WaitURLChange returns once the page URL differs from from.
	WaitURLChange(ctx context.Context, from string) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Close tears the browser down. Calling it more than once is safe.
	Close() error
}

// Launcher starts new sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
