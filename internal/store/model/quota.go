package model

import (
	"encoding/json"
	"time"
)

// Quota resource constants
const (
	ResourceCredits          = "credits"
	ResourceInterviewMinutes = "interview_minutes"
	ResourceJobMatches       = "job_matches"
)

// QuotaLedger tracks a periodically-resetting consumable limit tied to the
// account's billing plan. Invariant: Consumed <= LimitValue.
type QuotaLedger struct {
	AccountID   string    `gorm:"primaryKey"`
	Resource    string    `gorm:"primaryKey"`
	PeriodStart time.Time `gorm:"not null"`
	Consumed    int64     `gorm:"not null;default:0"`
	LimitValue  int64     `gorm:"not null;column:limit_value"`
	UpdatedAt   time.Time
}

func (q QuotaLedger) String() string {
	val, _ := json.Marshal(q)
	return string(val)
}

// Remaining returns the unconsumed amount for the current period.
func (q QuotaLedger) Remaining() int64 {
	if q.Consumed >= q.LimitValue {
		return 0
	}
	return q.LimitValue - q.Consumed
}
