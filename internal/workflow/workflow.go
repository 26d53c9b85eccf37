// Package workflow drives one platform's event-creation form through a browser
// session. Every platform follows the same state sequence; what differs is the
// selector table in its Definition.
package workflow

import (
	"fmt"
	"strings"

	"github.com/hormur/event-syndicator/internal/assets"
	"github.com/hormur/event-syndicator/internal/config"
	"github.com/hormur/event-syndicator/internal/models"
)

// State is a position in the publish state machine.
type State string

const (
	StateStart           State = "start"
	StateAuthenticated   State = "authenticated"
	StateEventFormReady  State = "event_form_ready"
	StateFieldsPopulated State = "fields_populated"
	StateAssetAttached   State = "asset_attached"
	StateSubmitted       State = "submitted"
	StateVerified        State = "verified"
)

// Action is a single page interaction.
type Action string

const (
	ActionClick  Action = "click"
	ActionType   Action = "type"
	ActionFill   Action = "fill"
	ActionSelect Action = "select"
	ActionWait   Action = "wait"
)

// Input is what step values are computed from.
type Input struct {
	Request     models.PublishRequest
	Credential  config.Credential
	Description string
}

// Value computes the text a step types, fills or selects.
type Value func(in Input) string

func Literal(s string) Value { return func(Input) string { return s } }

var (
	Title       Value = func(in Input) string { return in.Request.Title }
	Date        Value = func(in Input) string { return in.Request.DateISO() }
	Time        Value = func(in Input) string { return in.Request.Time }
	Venue       Value = func(in Input) string { return in.Request.Venue }
	Address     Value = func(in Input) string { return in.Request.Address }
	Category    Value = func(in Input) string { return in.Request.Category }
	EventURL    Value = func(in Input) string { return in.Request.EventURL }
	Description Value = func(in Input) string { return in.Description }
	Login       Value = func(in Input) string { return in.Credential.Login }
	Secret      Value = func(in Input) string { return in.Credential.Secret }
)

// Step is one row of a selector table.
type Step struct {
	Action   Action
	Selector string
	Value    Value
	// Optional steps are attempted but never fail the workflow.
	Optional bool
}

func Click(selector string) Step { return Step{Action: ActionClick, Selector: selector} }
func Wait(selector string) Step  { return Step{Action: ActionWait, Selector: selector} }

func TypeInto(selector string, v Value) Step {
	return Step{Action: ActionType, Selector: selector, Value: v}
}

func Fill(selector string, v Value) Step {
	return Step{Action: ActionFill, Selector: selector, Value: v}
}

func Choose(selector string, v Value) Step {
	return Step{Action: ActionSelect, Selector: selector, Value: v}
}

// String describes the step without its value, which may be a secret.
func (s Step) String() string {
	return fmt.Sprintf("%s %s", s.Action, s.Selector)
}

// Definition is the data a platform supplies to the state machine.
type Definition struct {
	Platform models.Platform
	Name     string

	LoginURL string
	// Consent is a cookie/consent dialog button dismissed when present.
	Consent string
	// Login fills and submits the login form. A URL change must follow.
	Login []Step

	FormURL string
	// FormReady appears once the creation form can be used.
	FormReady string
	Fields    []Step

	// Upload is the file input for the event image. Empty means the
	// platform takes no image and the asset state is never entered.
	Upload    string
	ImageSpec assets.Spec

	Submit []Step
	// AwaitNavigation makes the submit step wait for the page to leave the form.
	AwaitNavigation bool
	// SuccessSelector, when set, is looked for after submission.
	SuccessSelector string

	// Footer returns the platform's booking footer for eventURL.
	// Nil when the platform does not take a description.
	Footer func(eventURL string) string
}

// Description assembles the text typed into the description field.
func (d Definition) Description(req models.PublishRequest) string {
	if d.Footer == nil {
		return ""
	}
	return strings.TrimSpace(req.Description + d.Footer(req.EventURL))
}

// Registry maps platforms to their definitions.
type Registry map[models.Platform]Definition

// Register adds or replaces def.
func (r Registry) Register(def Definition) {
	r[def.Platform] = def
}

// DefaultRegistry holds every platform this service can publish to.
func DefaultRegistry() Registry {
	r := make(Registry)
	r.Register(Eventim())
	r.Register(JDS())
	r.Register(AllEvents())
	return r
}
