package v1alpha1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/careerforge/careerforge/internal/service"
	"github.com/careerforge/careerforge/internal/store/model"
)

type EventRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type EventReply struct {
	ItemID uuid.UUID `json:"item_id"`
	Status string    `json:"status"`
}

type ResumeCreateRequest struct {
	OwnerID string `json:"owner_id"`
	Content string `json:"content"`
}

type ResumeReply struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type ResumeStatusReply struct {
	ID            uuid.UUID         `json:"id"`
	Status        string            `json:"status"`
	ExtractedData *model.ResumeData `json:"extracted_data,omitempty"`
}

type TailoredRequest struct {
	AccountID string `json:"account_id"`
	JobID     string `json:"job_id"`
}

type TailoredReply struct {
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Content string    `json:"content,omitempty"`
}

type InterviewCreateRequest struct {
	UserID        string `json:"user_id"`
	BudgetMinutes int    `json:"budget_minutes"`
}

type InterviewReply struct {
	ID               uuid.UUID `json:"id"`
	Status           string    `json:"status"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

type CategoryCreateRequest struct {
	Label          string `json:"label"`
	Location       string `json:"location"`
	RefreshSeconds int    `json:"refresh_seconds"`
}

type CategoryReply struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
}

type RecruiterSubmissionRequest struct {
	RecruiterID string    `json:"recruiter_id"`
	CategoryID  uuid.UUID `json:"category_id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
}

type ErrorReply struct {
	Message string `json:"message"`
}

func (EventReply) Render(w http.ResponseWriter, r *http.Request) error        { return nil }
func (ResumeReply) Render(w http.ResponseWriter, r *http.Request) error       { return nil }
func (ResumeStatusReply) Render(w http.ResponseWriter, r *http.Request) error { return nil }
func (TailoredReply) Render(w http.ResponseWriter, r *http.Request) error     { return nil }
func (InterviewReply) Render(w http.ResponseWriter, r *http.Request) error    { return nil }
func (CategoryReply) Render(w http.ResponseWriter, r *http.Request) error     { return nil }
func (ErrorReply) Render(w http.ResponseWriter, r *http.Request) error        { return nil }

// renderError maps the service error taxonomy onto HTTP statuses.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound    *service.ErrResourceNotFound
		quota       *service.ErrQuotaExceeded
		rateLimited *service.ErrRateLimited
		validation  *service.ErrValidation
	)

	switch {
	case errors.As(err, &notFound):
		render.Status(r, http.StatusNotFound)
	case errors.As(err, &quota):
		render.Status(r, http.StatusPaymentRequired)
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimited.RetryAfter.Seconds())+1))
		render.Status(r, http.StatusTooManyRequests)
	case errors.As(err, &validation):
		render.Status(r, http.StatusBadRequest)
	default:
		render.Status(r, http.StatusInternalServerError)
	}
	_ = render.Render(w, r, ErrorReply{Message: err.Error()})
}
