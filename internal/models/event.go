package models

import (
	"errors"
	"strings"
	"time"
)

// Defaults applied during normalization.
const (
	DefaultTime     = "20:00"
	DefaultVenue    = "Lieu à confirmer"
	DefaultAddress  = "Paris"
	DefaultEventURL = "https://hormur.com"
	DefaultCategory = "Concert"
)

// PublishRequest is the canonical event record received from the webhook.
type PublishRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Venue       string `json:"venue"`
	Address     string `json:"address"`
	ImageURL    string `json:"imageUrl,omitempty"`
	EventURL    string `json:"eventUrl"`
	Category    string `json:"category"`
}

// Normalize validates the request and fills in defaults. The receiver is left untouched.
func (r PublishRequest) Normalize() (PublishRequest, error) {
	n := PublishRequest{
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Date:        strings.TrimSpace(r.Date),
		Time:        orDefault(r.Time, DefaultTime),
		Venue:       orDefault(r.Venue, DefaultVenue),
		Address:     orDefault(r.Address, DefaultAddress),
		ImageURL:    strings.TrimSpace(r.ImageURL),
		EventURL:    orDefault(r.EventURL, DefaultEventURL),
		Category:    orDefault(r.Category, DefaultCategory),
	}

	if n.Title == "" {
		return PublishRequest{}, E(KindValidation, "normalize request", errors.New("title is required"))
	}
	if n.Date == "" {
		return PublishRequest{}, E(KindValidation, "normalize request", errors.New("date is required"))
	}
	if _, err := parseEventDate(n.Date); err != nil {
		return PublishRequest{}, E(KindValidation, "normalize request", err)
	}

	return n, nil
}

// EventDate returns the calendar day of the event.
func (r PublishRequest) EventDate() (time.Time, error) {
	return parseEventDate(r.Date)
}

// DateISO formats the event day as YYYY-MM-DD, the value date inputs expect.
func (r PublishRequest) DateISO() string {
	d, err := r.EventDate()
	if err != nil {
		return r.Date
	}
	return d.Format("2006-01-02")
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func parseEventDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("date must be YYYY-MM-DD or RFC3339")
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
