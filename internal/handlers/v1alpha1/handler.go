package v1alpha1

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careerforge/careerforge/internal/dispatcher"
	"github.com/careerforge/careerforge/internal/ratelimit"
	"github.com/careerforge/careerforge/internal/service"
	"github.com/careerforge/careerforge/internal/store/model"
	"github.com/careerforge/careerforge/pkg/metrics"
)

// ServiceHandler exposes the pipeline over HTTP. Mutations are accepted,
// validated, admitted through the rate limiter and turned into work items;
// the read endpoints serve current state directly.
type ServiceHandler struct {
	resumeSrv    *service.ResumeService
	tailoredSrv  *service.TailoredResumeService
	interviewSrv *service.InterviewService
	jobFeedSrv   *service.JobFeedService
	dispatcher   *dispatcher.Dispatcher
	limiter      *ratelimit.Limiter
	validate     *validator.Validate
}

func NewServiceHandler(
	resumeSrv *service.ResumeService,
	tailoredSrv *service.TailoredResumeService,
	interviewSrv *service.InterviewService,
	jobFeedSrv *service.JobFeedService,
	d *dispatcher.Dispatcher,
	limiter *ratelimit.Limiter,
) *ServiceHandler {
	return &ServiceHandler{
		resumeSrv:    resumeSrv,
		tailoredSrv:  tailoredSrv,
		interviewSrv: interviewSrv,
		jobFeedSrv:   jobFeedSrv,
		dispatcher:   d,
		limiter:      limiter,
		validate:     validator.New(),
	}
}

func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/v1alpha1", func(r chi.Router) {
		r.Post("/events", h.SubmitEvent)

		r.Post("/resumes", h.CreateResume)
		r.Put("/resumes/{id}", h.UpdateResume)
		r.Get("/resumes/{id}/status", h.GetResumeStatus)
		r.Post("/resumes/{id}/tailored", h.RequestTailored)
		r.Get("/resumes/{id}/tailored/{jobID}", h.GetTailored)

		r.Post("/interviews", h.CreateInterview)
		r.Get("/interviews/{id}", h.GetInterview)
		r.Post("/interviews/{id}/close", h.CloseInterview)

		r.Post("/categories", h.CreateCategory)
		r.Post("/categories/{id}/subscriptions", h.Subscribe)
		r.Post("/jobs/recruiter-submissions", h.SubmitRecruiterJob)
		r.Post("/postings/{id}/approve", h.ApprovePosting)
	})
}

// admit runs a request through the per-account rate limiter.
func (h *ServiceHandler) admit(accountID string, r *http.Request) error {
	key := accountID
	if key == "" {
		key = r.RemoteAddr
	}
	allowed, retryAfter := h.limiter.TryAcquire(key, 1)
	if !allowed {
		metrics.IncreaseRateLimitedMetric("events")
		return service.NewErrRateLimited(key, retryAfter)
	}
	return nil
}

// (POST /api/v1alpha1/events)
func (h *ServiceHandler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation(fmt.Sprintf("malformed request: %s", err)))
		return
	}

	accountID, entityKey, err := h.inspectPayload(req.Kind, req.Payload)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.admit(accountID, r); err != nil {
		renderError(w, r, err)
		return
	}

	itemID, err := h.dispatcher.Enqueue(r.Context(), req.Kind, entityKey, json.RawMessage(req.Payload))
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, EventReply{ItemID: itemID, Status: "accepted"})
}

// inspectPayload validates the payload for the given kind and derives the
// account (for rate limiting) and the entity key (for ordering).
func (h *ServiceHandler) inspectPayload(kind string, raw json.RawMessage) (accountID, entityKey string, err error) {
	decode := func(out any) error {
		if err := json.Unmarshal(raw, out); err != nil {
			return service.NewErrValidation(fmt.Sprintf("malformed payload: %s", err))
		}
		if err := h.validate.Struct(out); err != nil {
			return service.NewErrValidation(err.Error())
		}
		return nil
	}

	switch kind {
	case model.KindResumeCreated, model.KindResumeUpdated:
		var p service.ResumeEventPayload
		if err := decode(&p); err != nil {
			return "", "", err
		}
		return "", service.ResumeEntityKey(p.ResumeID), nil
	case model.KindTailoredResumeCreated, model.KindTailoredResumeUpdated:
		var p service.TailoredResumeEventPayload
		if err := decode(&p); err != nil {
			return "", "", err
		}
		return p.AccountID, service.ResumeEntityKey(p.ResumeID), nil
	case model.KindInterviewCreated:
		var p service.InterviewEventPayload
		if err := decode(&p); err != nil {
			return "", "", err
		}
		return "", service.InterviewEntityKey(p.SessionID), nil
	case model.KindCategoryIngest:
		var p service.CategoryIngestPayload
		if err := decode(&p); err != nil {
			return "", "", err
		}
		return "", service.CategoryEntityKey(p.CategoryID), nil
	case model.KindRecruiterJobSubmitted:
		var p service.RecruiterJobPayload
		if err := decode(&p); err != nil {
			return "", "", err
		}
		return p.RecruiterID, service.CategoryEntityKey(p.CategoryID), nil
	default:
		return "", "", service.NewErrValidation(fmt.Sprintf("unknown event kind %q", kind))
	}
}

// (POST /api/v1alpha1/resumes)
func (h *ServiceHandler) CreateResume(w http.ResponseWriter, r *http.Request) {
	var req ResumeCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation(fmt.Sprintf("malformed request: %s", err)))
		return
	}
	if err := h.admit(req.OwnerID, r); err != nil {
		renderError(w, r, err)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		renderError(w, r, service.NewErrValidation("content must be base64 encoded"))
		return
	}

	resume, err := h.resumeSrv.CreateResume(r.Context(), req.OwnerID, raw)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if _, err := h.dispatcher.Enqueue(r.Context(), model.KindResumeCreated,
		service.ResumeEntityKey(resume.ID), service.ResumeEventPayload{ResumeID: resume.ID}); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, ResumeReply{ID: resume.ID, Status: resume.Status})
}

// (PUT /api/v1alpha1/resumes/{id})
func (h *ServiceHandler) UpdateResume(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid resume id"))
		return
	}

	var req ResumeCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation(fmt.Sprintf("malformed request: %s", err)))
		return
	}
	if err := h.admit(req.OwnerID, r); err != nil {
		renderError(w, r, err)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		renderError(w, r, service.NewErrValidation("content must be base64 encoded"))
		return
	}

	if err := h.resumeSrv.UpdateResume(r.Context(), id, raw); err != nil {
		renderError(w, r, err)
		return
	}
	if _, err := h.dispatcher.Enqueue(r.Context(), model.KindResumeUpdated,
		service.ResumeEntityKey(id), service.ResumeEventPayload{ResumeID: id}); err != nil {
		renderError(w, r, err)
		return
	}

	_ = render.Render(w, r, ResumeReply{ID: id, Status: model.ResumeStatusPending})
}

// (GET /api/v1alpha1/resumes/{id}/status)
func (h *ServiceHandler) GetResumeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid resume id"))
		return
	}

	status, err := h.resumeSrv.GetStatus(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, ResumeStatusReply{ID: status.ID, Status: status.Status, ExtractedData: status.ExtractedData})
}

// (POST /api/v1alpha1/resumes/{id}/tailored)
func (h *ServiceHandler) RequestTailored(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid resume id"))
		return
	}

	var req TailoredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation(fmt.Sprintf("malformed request: %s", err)))
		return
	}
	if err := h.admit(req.AccountID, r); err != nil {
		renderError(w, r, err)
		return
	}

	if err := h.tailoredSrv.RequestVariant(r.Context(), req.AccountID, id, req.JobID); err != nil {
		renderError(w, r, err)
		return
	}

	itemID, err := h.dispatcher.Enqueue(r.Context(), model.KindTailoredResumeCreated,
		service.ResumeEntityKey(id),
		service.TailoredResumeEventPayload{ResumeID: id, JobID: req.JobID, AccountID: req.AccountID})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, EventReply{ItemID: itemID, Status: "accepted"})
}

// (GET /api/v1alpha1/resumes/{id}/tailored/{jobID})
func (h *ServiceHandler) GetTailored(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid resume id"))
		return
	}

	variant, err := h.tailoredSrv.GetVariant(r.Context(), id, chi.URLParam(r, "jobID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, TailoredReply{ID: variant.ID, Status: variant.Status, Content: variant.Content})
}

// (POST /api/v1alpha1/interviews)
func (h *ServiceHandler) CreateInterview(w http.ResponseWriter, r *http.Request) {
	var req InterviewCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation(fmt.Sprintf("malformed request: %s", err)))
		return
	}
	if err := h.admit(req.UserID, r); err != nil {
		renderError(w, r, err)
		return
	}

	session, err := h.interviewSrv.CreateSession(r.Context(), req.UserID, req.BudgetMinutes)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if _, err := h.dispatcher.Enqueue(r.Context(), model.KindInterviewCreated,
		service.InterviewEntityKey(session.ID), service.InterviewEventPayload{SessionID: session.ID}); err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, InterviewReply{
		ID:               session.ID,
		Status:           session.Status,
		RemainingSeconds: session.Remaining(time.Now()),
	})
}

// (GET /api/v1alpha1/interviews/{id})
func (h *ServiceHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid session id"))
		return
	}

	remaining, err := h.interviewSrv.RemainingSeconds(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, InterviewReply{ID: id, RemainingSeconds: remaining})
}

// (POST /api/v1alpha1/interviews/{id}/close)
func (h *ServiceHandler) CloseInterview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid session id"))
		return
	}

	if err := h.interviewSrv.CloseSession(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	_ = render.Render(w, r, InterviewReply{ID: id, Status: model.InterviewStatusClosed})
}

// (POST /api/v1alpha1/categories)
func (h *ServiceHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation(fmt.Sprintf("malformed request: %s", err)))
		return
	}

	category, err := h.jobFeedSrv.CreateCategory(r.Context(), req.Label, req.Location,
		time.Duration(req.RefreshSeconds)*time.Second)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, CategoryReply{ID: category.ID, Label: category.Label})
}

// (POST /api/v1alpha1/categories/{id}/subscriptions)
func (h *ServiceHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid category id"))
		return
	}

	var req struct {
		AccountID string `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		renderError(w, r, service.NewErrValidation("account_id is required"))
		return
	}

	if err := h.jobFeedSrv.Subscribe(r.Context(), req.AccountID, id); err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, CategoryReply{ID: id})
}

// (POST /api/v1alpha1/jobs/recruiter-submissions)
func (h *ServiceHandler) SubmitRecruiterJob(w http.ResponseWriter, r *http.Request) {
	var req RecruiterSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, service.NewErrValidation(fmt.Sprintf("malformed request: %s", err)))
		return
	}
	if err := h.admit(req.RecruiterID, r); err != nil {
		renderError(w, r, err)
		return
	}

	payload := service.RecruiterJobPayload{
		RecruiterID: req.RecruiterID,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Company:     req.Company,
		Location:    req.Location,
		PostedAt:    time.Now(),
	}
	if err := h.validate.Struct(payload); err != nil {
		renderError(w, r, service.NewErrValidation(err.Error()))
		return
	}

	itemID, err := h.dispatcher.Enqueue(r.Context(), model.KindRecruiterJobSubmitted,
		service.CategoryEntityKey(req.CategoryID), payload)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, EventReply{ItemID: itemID, Status: "accepted"})
}

// (POST /api/v1alpha1/postings/{id}/approve)
func (h *ServiceHandler) ApprovePosting(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, service.NewErrValidation("invalid posting id"))
		return
	}

	if err := h.jobFeedSrv.ApprovePosting(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
