package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hormur/event-syndicator/internal/models"
)

// Credential is the login pair for one platform account.
type Credential struct {
	Platform models.Platform
	Login    string
	Secret   string
}

// String never includes the secret.
func (c Credential) String() string {
	return fmt.Sprintf("%s:%s:***", c.Platform, c.Login)
}

// MarshalZerologObject keeps the secret out of structured logs.
func (c Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Str("platform", string(c.Platform)).Str("login", c.Login).Bool("has_secret", c.Secret != "")
}

// CredentialStore is a read-only platform -> credential mapping.
// It is built once at startup and safe for concurrent reads.
type CredentialStore struct {
	creds map[models.Platform]Credential
}

// NewCredentialStore copies creds into a store.
func NewCredentialStore(creds ...Credential) CredentialStore {
	m := make(map[models.Platform]Credential, len(creds))
	for _, c := range creds {
		m[c.Platform] = c
	}
	return CredentialStore{creds: m}
}

// Get returns the credential for p.
func (s CredentialStore) Get(p models.Platform) (Credential, bool) {
	c, ok := s.creds[p]
	return c, ok
}

// Require checks that every platform has a complete credential pair.
func (s CredentialStore) Require(platforms []models.Platform) error {
	var missing []string
	for _, p := range platforms {
		c, ok := s.creds[p]
		if !ok || c.Login == "" || c.Secret == "" {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials for platforms: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoadEnvCredentials reads <PLATFORM>_EMAIL and <PLATFORM>_PASSWORD for each platform.
// Platforms without a login are left out of the store.
func LoadEnvCredentials(platforms []models.Platform) CredentialStore {
	return loadCredentials(platforms, os.Getenv)
}

func loadCredentials(platforms []models.Platform, getenv func(string) string) CredentialStore {
	var creds []Credential
	for _, p := range platforms {
		prefix := strings.ToUpper(string(p))
		login := getenv(prefix + "_EMAIL")
		if login == "" {
			continue
		}
		creds = append(creds, Credential{
			Platform: p,
			Login:    login,
			Secret:   getenv(prefix + "_PASSWORD"),
		})
	}
	return NewCredentialStore(creds...)
}
