package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careerforge/careerforge/internal/dispatcher"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

// ResumeTailor rewrites an analyzed resume so it targets a specific job
// posting.
type ResumeTailor interface {
	Tailor(ctx context.Context, resume model.ResumeData, jobID string) (string, error)
}

// sourceNotReadyDelay is how long a tailoring item waits for the source
// resume's analysis to finish before the next probe.
const sourceNotReadyDelay = 15 * time.Second

// TailoredResumeService produces job-specific resume variants. Each variant
// costs one credit and the credit is refunded when generation fails, so a
// failed attempt never charges the account.
type TailoredResumeService struct {
	store  store.Store
	tailor ResumeTailor
	quota  *QuotaService
	logger *zap.SugaredLogger
}

func NewTailoredResumeService(s store.Store, tailor ResumeTailor, quota *QuotaService) *TailoredResumeService {
	return &TailoredResumeService{
		store:  s,
		tailor: tailor,
		quota:  quota,
		logger: zap.S().Named("tailored_resume_service"),
	}
}

// HandleTailoredEvent consumes tailored_resume.created and
// tailored_resume.updated work items.
func (s *TailoredResumeService) HandleTailoredEvent(ctx context.Context, item *model.WorkItem) error {
	payload, err := decodePayload[TailoredResumeEventPayload](item.Payload)
	if err != nil {
		return err
	}

	resume, err := s.store.Resume().Get(ctx, payload.ResumeID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrResumeNotFound(payload.ResumeID)
		}
		return err
	}

	switch resume.Status {
	case model.ResumeStatusReady:
	case model.ResumeStatusFailed:
		return NewErrValidation(fmt.Sprintf("resume %s failed analysis and cannot be tailored", resume.ID))
	default:
		// analysis still in flight, probe again shortly
		return dispatcher.Requeue(sourceNotReadyDelay, fmt.Sprintf("resume %s is %s", resume.ID, resume.Status))
	}

	if item.Kind == model.KindTailoredResumeCreated {
		if existing, err := s.store.TailoredResume().Get(ctx, payload.ResumeID, payload.JobID); err == nil &&
			existing.Status == model.TailoredResumeStatusReady {
			s.logger.Debugw("tailored resume already generated", "resume", payload.ResumeID, "job", payload.JobID)
			return nil
		}
	}

	if err := s.quota.Reserve(ctx, payload.AccountID, model.ResourceCredits, 1); err != nil {
		return err
	}

	if resume.ExtractedData == nil {
		return NewErrValidation(fmt.Sprintf("resume %s has no extracted data", resume.ID))
	}

	content, err := s.tailor.Tailor(ctx, resume.ExtractedData.Data, payload.JobID)
	if err != nil {
		s.quota.Release(ctx, payload.AccountID, model.ResourceCredits, 1)
		return fmt.Errorf("tailoring resume %s for job %s: %w", payload.ResumeID, payload.JobID, err)
	}

	variant, err := s.store.TailoredResume().Upsert(ctx, &model.TailoredResume{
		ResumeID:  payload.ResumeID,
		JobID:     payload.JobID,
		AccountID: payload.AccountID,
		Content:   content,
		Status:    model.TailoredResumeStatusReady,
	})
	if err != nil {
		s.quota.Release(ctx, payload.AccountID, model.ResourceCredits, 1)
		return fmt.Errorf("storing tailored resume: %w", err)
	}

	s.logger.Infow("tailored resume generated", "id", variant.ID, "resume", payload.ResumeID, "job", payload.JobID)
	return nil
}

// RequestVariant validates a synchronous tailoring request before a work item
// is enqueued. Quota exhaustion is surfaced immediately so the client gets a
// payment-required response instead of a queued item doomed to fail.
func (s *TailoredResumeService) RequestVariant(ctx context.Context, accountID string, resumeID uuid.UUID, jobID string) error {
	if jobID == "" {
		return NewErrValidation("job id is required")
	}
	if _, err := s.store.Resume().Get(ctx, resumeID); err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrResumeNotFound(resumeID)
		}
		return err
	}
	remaining, err := s.quota.Remaining(ctx, accountID, model.ResourceCredits)
	if err != nil {
		return err
	}
	if remaining < 1 {
		return NewErrQuotaExceeded(accountID, model.ResourceCredits)
	}
	return nil
}

// GetVariant returns a generated variant.
func (s *TailoredResumeService) GetVariant(ctx context.Context, resumeID uuid.UUID, jobID string) (*model.TailoredResume, error) {
	variant, err := s.store.TailoredResume().Get(ctx, resumeID, jobID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return nil, NewErrResumeNotFound(resumeID)
		}
		return nil, err
	}
	return variant, nil
}
