package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event payloads, one per work item kind. Validation tags are enforced at the
// event submission surface.

type ResumeEventPayload struct {
	ResumeID uuid.UUID `json:"resume_id" validate:"required"`
}

type TailoredResumeEventPayload struct {
	ResumeID  uuid.UUID `json:"resume_id" validate:"required"`
	JobID     string    `json:"job_id" validate:"required"`
	AccountID string    `json:"account_id" validate:"required"`
}

type InterviewEventPayload struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
}

type CategoryIngestPayload struct {
	CategoryID uuid.UUID `json:"category_id" validate:"required"`
}

type RecruiterJobPayload struct {
	RecruiterID string    `json:"recruiter_id" validate:"required"`
	CategoryID  uuid.UUID `json:"category_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Company     string    `json:"company" validate:"required"`
	Location    string    `json:"location"`
	PostedAt    time.Time `json:"posted_at"`
}

// Entity keys group work items that must never run concurrently. Tailoring
// items share the resume key so a variant is never generated while the source
// resume is still being analyzed.

func ResumeEntityKey(id uuid.UUID) string    { return "resume/" + id.String() }
func InterviewEntityKey(id uuid.UUID) string { return "interview/" + id.String() }
func CategoryEntityKey(id uuid.UUID) string  { return "category/" + id.String() }

func decodePayload[T any](raw []byte) (T, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		var zero T
		return zero, NewErrValidation(fmt.Sprintf("malformed payload: %s", err))
	}
	return payload, nil
}
