package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Interview session status constants
const (
	InterviewStatusCreated = "created"
	InterviewStatusActive  = "active"
	InterviewStatusExpired = "expired"
	InterviewStatusClosed  = "closed"
)

// InterviewSession tracks a live conversation with the remote provider
// against a hard wall-clock budget.
type InterviewSession struct {
	ID              uuid.UUID `gorm:"primaryKey"`
	UserID          string    `gorm:"not null;index"`
	ConversationID  string
	Status          string `gorm:"not null;index"`
	BudgetSeconds   int    `gorm:"not null"`
	ConsumedSeconds int    `gorm:"not null;default:0"`
	StartedAt       *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time
}

type InterviewSessionList []InterviewSession

func (i InterviewSession) String() string {
	val, _ := json.Marshal(i)
	return string(val)
}

// Remaining returns the remaining budget at the given instant. It never goes
// negative. For active sessions the consumption is computed live from the
// start timestamp.
func (i InterviewSession) Remaining(now time.Time) int {
	consumed := i.ConsumedSeconds
	if i.Status == InterviewStatusActive && i.StartedAt != nil {
		if elapsed := int(now.Sub(*i.StartedAt).Seconds()); elapsed > consumed {
			consumed = elapsed
		}
	}
	if consumed >= i.BudgetSeconds {
		return 0
	}
	return i.BudgetSeconds - consumed
}
