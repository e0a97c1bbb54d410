package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Work item kinds. The kind selects the handler in the dispatcher registry.
const (
	KindResumeCreated         = "resume.created"
	KindResumeUpdated         = "resume.updated"
	KindTailoredResumeCreated = "tailored_resume.created"
	KindTailoredResumeUpdated = "tailored_resume.updated"
	KindInterviewCreated      = "interview.created"
	KindDailyJobFeed          = "job_feed.daily"
	KindCategoryIngest        = "job_feed.category_ingest"
	KindScheduledIngest       = "job_feed.scheduled_sweep"
	KindRecruiterJobSubmitted = "job_feed.recruiter_submitted"
)

// Work item status constants
const (
	WorkItemStatusPending      = "pending"
	WorkItemStatusRunning      = "running"
	WorkItemStatusSucceeded    = "succeeded"
	WorkItemStatusFailed       = "failed"
	WorkItemStatusDeadLettered = "dead_lettered"
)

// WorkItem is the durable unit of asynchronous work. It is owned exclusively
// by the dispatcher and mutated only through claim/ack/retry transitions.
type WorkItem struct {
	ID          uuid.UUID `gorm:"primaryKey"`
	Kind        string    `gorm:"not null;index:work_items_status_idx,priority:2"`
	EntityKey   string    `gorm:"not null;index"`
	Payload     []byte    `gorm:"type:jsonb"`
	Status      string    `gorm:"not null;index:work_items_status_idx,priority:1"`
	Attempt     int       `gorm:"not null;default:0"`
	MaxAttempts int       `gorm:"not null;default:5"`
	NotBefore   time.Time `gorm:"not null;index"`
	LastError   string
	EnqueuedAt  time.Time `gorm:"not null"`
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

type WorkItemList []WorkItem

func (w WorkItem) String() string {
	val, _ := json.Marshal(w)
	return string(val)
}

// Terminal reports whether the item reached a state the dispatcher will never
// pick up again.
func (w WorkItem) Terminal() bool {
	switch w.Status {
	case WorkItemStatusSucceeded, WorkItemStatusFailed, WorkItemStatusDeadLettered:
		return true
	}
	return false
}
