package models

import (
	"fmt"
	"strings"
)

// Platform names one third-party listing site.
type Platform string

const (
	PlatformEventim   Platform = "eventim"
	PlatformJDS       Platform = "jds"
	PlatformAllEvents Platform = "allevents"
)

// AllPlatforms lists every platform the service knows how to publish to.
var AllPlatforms = []Platform{
	PlatformEventim,
	PlatformJDS,
	PlatformAllEvents,
}

// ParsePlatform resolves a platform identifier, case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// ParsePlatforms parses a comma separated list. An empty list yields AllPlatforms.
func ParsePlatforms(list string) ([]Platform, error) {
	if strings.TrimSpace(list) == "" {
		return append([]Platform(nil), AllPlatforms...), nil
	}

	var platforms []Platform
	seen := make(map[Platform]bool)
	for _, part := range strings.Split(list, ",") {
		p, err := ParsePlatform(part)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		platforms = append(platforms, p)
	}
	return platforms, nil
}
