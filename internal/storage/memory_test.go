package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hormur/event-syndicator/internal/models"
)

func newRecord(p models.Platform) models.JobRecord {
	return models.NewJobRecord(p, models.PublishRequest{Title: "Test", Date: "2025-06-01"})
}

func TestMemoryJobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	rec := newRecord(models.PlatformJDS)
	if err := s.Create(ctx, []models.JobRecord{rec}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	c, _ := s.Counts(ctx, models.PlatformJDS)
	if c.Waiting != 1 {
		t.Fatalf("expected 1 waiting, got %+v", c)
	}

	if err := s.MarkActive(ctx, rec.ID); err != nil {
		t.Fatalf("MarkActive error: %v", err)
	}
	c, _ = s.Counts(ctx, models.PlatformJDS)
	if c.Active != 1 || c.Waiting != 0 {
		t.Fatalf("expected 1 active, got %+v", c)
	}

	if err := s.Finish(ctx, rec.ID, models.Succeeded(models.PlatformJDS, "verified", "ok")); err != nil {
		t.Fatalf("Finish error: %v", err)
	}
	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.State != models.JobCompleted || got.Result == nil || !got.Result.Success {
		t.Fatalf("unexpected record after finish: %+v", got)
	}

	if err := s.MarkActive(ctx, rec.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("finished job must not be claimable, got %v", err)
	}
}

func TestMemoryJobStore_FailedResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()
	rec := newRecord(models.PlatformEventim)
	s.Create(ctx, []models.JobRecord{rec})

	s.Finish(ctx, rec.ID, models.Failed(models.PlatformEventim, "start", errors.New("boom")))

	c, _ := s.Counts(ctx, models.PlatformEventim)
	if c.Failed != 1 || c.Completed != 0 {
		t.Fatalf("expected 1 failed, got %+v", c)
	}
}

func TestMemoryJobStore_CreateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()
	dup := newRecord(models.PlatformJDS)
	s.Create(ctx, []models.JobRecord{dup})

	err := s.Create(ctx, []models.JobRecord{newRecord(models.PlatformEventim), dup})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if c, _ := s.Counts(ctx, models.PlatformEventim); c.Waiting != 0 {
		t.Fatalf("expected no partial insert, got %+v", c)
	}
}

func TestMemoryJobStore_PruneKeepsOpenJobs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	done := newRecord(models.PlatformJDS)
	open := newRecord(models.PlatformJDS)
	s.Create(ctx, []models.JobRecord{done, open})
	s.Finish(ctx, done.ID, models.Succeeded(models.PlatformJDS, "verified", "ok"))

	n, err := s.Prune(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned, got %d (%v)", n, err)
	}
	if _, err := s.Get(ctx, open.ID); err != nil {
		t.Fatalf("open job must survive pruning: %v", err)
	}
	if _, err := s.Get(ctx, done.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected finished job pruned, got %v", err)
	}
}
