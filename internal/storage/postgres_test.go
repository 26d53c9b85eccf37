package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/hormur/event-syndicator/internal/models"
)

// newTestPostgres connects to TEST_DB_HOST, or skips the test.
func newTestPostgres(t *testing.T) *PostgresJobStore {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	s, err := NewPostgresJobStore(host, env("TEST_DB_PORT", "5432"), env("TEST_DB_USER", "postgres"),
		env("TEST_DB_PASSWORD", "postgres"), env("TEST_DB_NAME", "postgres"), "disable")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresJobStore_DeleteNothing(t *testing.T) {
	var s PostgresJobStore
	if err := s.Delete(context.Background(), nil); err != nil {
		t.Fatalf("empty delete must not reach the database: %v", err)
	}
}

func TestPostgresJobStore_DeleteRemovesWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	var (
		records []models.JobRecord
		ids     []string
	)
	for _, p := range models.AllPlatforms {
		rec := newRecord(p)
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	if err := s.Create(ctx, records); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := s.Delete(ctx, ids); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	for _, id := range ids {
		if _, err := s.Get(ctx, id); !errors.Is(err, ErrJobNotFound) {
			t.Fatalf("expected job %s to be gone, got %v", id, err)
		}
	}
}
