package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobCategory drives which external queries the ingestion pipeline issues and
// at what cadence.
type JobCategory struct {
	ID             uuid.UUID `gorm:"primaryKey"`
	Label          string    `gorm:"not null;uniqueIndex:job_categories_label_location_idx"`
	Location       string    `gorm:"uniqueIndex:job_categories_label_location_idx"`
	RefreshSeconds int       `gorm:"not null"`
	LastFetchedAt  *time.Time
	Active         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

type JobCategoryList []JobCategory

func (c JobCategory) String() string {
	val, _ := json.Marshal(c)
	return string(val)
}

// Due reports whether the category must be fetched again at the given instant.
func (c JobCategory) Due(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*c.LastFetchedAt) >= time.Duration(c.RefreshSeconds)*time.Second
}

// Job posting status constants. Recruiter submissions start in moderation and
// become visible only after approval.
const (
	PostingStatusVisible    = "visible"
	PostingStatusModeration = "moderation"
)

// JobPosting is a normalized ingested posting. DedupeKey collapses duplicates
// across ingestion runs; re-ingesting the same posting updates the existing
// row instead of creating a new one.
type JobPosting struct {
	ID         uuid.UUID `gorm:"primaryKey"`
	ExternalID string
	CategoryID uuid.UUID `gorm:"not null;index"`
	SourceID   string
	Title      string `gorm:"not null"`
	Company    string
	Location   string
	DedupeKey  string    `gorm:"not null;uniqueIndex"`
	Status     string    `gorm:"not null;index"`
	PostedAt   time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

type JobPostingList []JobPosting

func (p JobPosting) String() string {
	val, _ := json.Marshal(p)
	return string(val)
}

// UserInterest subscribes an account to postings of a category. Used for the
// notification fan-out after an ingestion batch.
type UserInterest struct {
	AccountID  string    `gorm:"primaryKey"`
	CategoryID uuid.UUID `gorm:"primaryKey;index"`
	CreatedAt  time.Time `gorm:"not null"`
}
