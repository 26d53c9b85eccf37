package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle position of a queued JobRecord.
type JobState string

const (
	JobEnqueued  JobState = "enqueued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further transition is expected.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRecord is one platform task persisted for the durable queue.
type JobRecord struct {
	ID        string         `json:"id"`
	Platform  Platform       `json:"platform"`
	Payload   PublishRequest `json:"payload"`
	State     JobState       `json:"state"`
	Result    *JobResult     `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewJobRecord creates an enqueued record for platform p.
func NewJobRecord(p Platform, payload PublishRequest) JobRecord {
	now := time.Now().UTC()
	return JobRecord{
		ID:        uuid.New().String(),
		Platform:  p,
		Payload:   payload,
		State:     JobEnqueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// QueueCounts summarises one platform queue.
type QueueCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Consumers int `json:"consumers"`
}
