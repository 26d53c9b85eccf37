package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNormalize_AppliesDefaults(t *testing.T) {
	in := PublishRequest{Title: "  Concert au salon ", Date: "2025-06-01"}

	out, err := in.Normalize()
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	if out.Title != "Concert au salon" {
		t.Fatalf("expected trimmed title, got %q", out.Title)
	}
	if out.Time != DefaultTime {
		t.Fatalf("expected time %q, got %q", DefaultTime, out.Time)
	}
	if out.Venue != DefaultVenue || out.Address != DefaultAddress {
		t.Fatalf("expected venue/address defaults, got %q / %q", out.Venue, out.Address)
	}
	if out.EventURL != DefaultEventURL || out.Category != DefaultCategory {
		t.Fatalf("expected eventUrl/category defaults, got %q / %q", out.EventURL, out.Category)
	}
	if out.Description != "" {
		t.Fatalf("expected empty description, got %q", out.Description)
	}
	if in.Time != "" {
		t.Fatalf("Normalize must not mutate its receiver")
	}
}

func TestNormalize_KeepsProvidedValues(t *testing.T) {
	in := PublishRequest{
		Title:    "Jazz",
		Date:     "2025-06-01T18:30:00Z",
		Time:     "18:30",
		Venue:    "Atelier",
		Address:  "Lyon",
		ImageURL: "https://img.example/a.png",
		EventURL: "https://hormur.com/e/42",
		Category: "Jazz",
	}

	out, err := in.Normalize()
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if out.Time != "18:30" || out.Venue != "Atelier" || out.Address != "Lyon" || out.Category != "Jazz" {
		t.Fatalf("provided values were overwritten: %+v", out)
	}
	if out.DateISO() != "2025-06-01" {
		t.Fatalf("expected DateISO 2025-06-01, got %q", out.DateISO())
	}
}

func TestNormalize_RejectsMissingRequiredFields(t *testing.T) {
	cases := []PublishRequest{
		{Date: "2025-06-01"},
		{Title: "   ", Date: "2025-06-01"},
		{Title: "Test"},
		{Title: "Test", Date: "next friday"},
	}

	for _, in := range cases {
		_, err := in.Normalize()
		if err == nil {
			t.Fatalf("expected error for %+v", in)
		}
		if !IsKind(err, KindValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
}

func TestStepError_UpgradesDeadlineToTimeout(t *testing.T) {
	err := StepError(KindNavigation, "open form", fmt.Errorf("wait: %w", context.DeadlineExceeded))
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout kind, got %q", KindOf(err))
	}

	err = StepError(KindNavigation, "open form", errors.New("boom"))
	if KindOf(err) != KindNavigation {
		t.Fatalf("expected navigation kind, got %q", KindOf(err))
	}
}

func TestParsePlatforms(t *testing.T) {
	all, err := ParsePlatforms("")
	if err != nil || len(all) != len(AllPlatforms) {
		t.Fatalf("expected all platforms, got %v (%v)", all, err)
	}

	some, err := ParsePlatforms("JDS, eventim,jds")
	if err != nil {
		t.Fatalf("ParsePlatforms error: %v", err)
	}
	if len(some) != 2 || some[0] != PlatformJDS || some[1] != PlatformEventim {
		t.Fatalf("unexpected platforms: %v", some)
	}

	if _, err := ParsePlatforms("eventim,myspace"); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}
