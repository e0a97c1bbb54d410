package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Resume status constants
const (
	ResumeStatusPending    = "pending"
	ResumeStatusProcessing = "processing"
	ResumeStatusReady      = "ready"
	ResumeStatusFailed     = "failed"
)

// ResumeData is the canonical extraction record produced by the document
// extraction and analysis stages.
type ResumeData struct {
	Text              string   `json:"text"`
	Summary           string   `json:"summary,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	Titles            []string `json:"titles,omitempty"`
	YearsOfExperience int      `json:"years_of_experience,omitempty"`
}

type Resume struct {
	ID            uuid.UUID              `gorm:"primaryKey"`
	OwnerID       string                 `gorm:"not null;index"`
	RawContent    []byte                 `gorm:"not null"`
	ExtractedData *JSONField[ResumeData] `gorm:"type:jsonb"`
	Status        string                 `gorm:"not null;index"`
	CreatedAt     time.Time              `gorm:"not null"`
	UpdatedAt     time.Time
}

type ResumeList []Resume

func (r Resume) String() string {
	val, _ := json.Marshal(r)
	return string(val)
}

// Tailored resume status constants
const (
	TailoredResumeStatusPending = "pending"
	TailoredResumeStatusReady   = "ready"
	TailoredResumeStatusFailed  = "failed"
)

// TailoredResume is a resume variant generated for a specific target job.
// There is at most one row per (resume, job) pair.
type TailoredResume struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	ResumeID  uuid.UUID `gorm:"not null;uniqueIndex:tailored_resumes_resume_job_idx"`
	JobID     string    `gorm:"not null;uniqueIndex:tailored_resumes_resume_job_idx"`
	AccountID string    `gorm:"not null;index"`
	Content   string
	Status    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (t TailoredResume) String() string {
	val, _ := json.Marshal(t)
	return string(val)
}
