package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careerforge/careerforge/internal/events"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
)

// DocumentExtractor turns raw uploaded bytes into plain text.
type DocumentExtractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// ResumeAnalyzer turns resume text into structured insight.
type ResumeAnalyzer interface {
	Analyze(ctx context.Context, text string) (*model.ResumeData, error)
}

// ResumeStatus is the client-facing polling view.
type ResumeStatus struct {
	ID            uuid.UUID         `json:"id"`
	Status        string            `json:"status"`
	ExtractedData *model.ResumeData `json:"extracted_data,omitempty"`
}

// ResumeService owns the resume lifecycle: pending -> processing -> ready,
// with processing -> failed on unrecoverable errors. Transitions are driven
// exclusively by work items; the polling surface only reads.
type ResumeService struct {
	store       store.Store
	extractor   DocumentExtractor
	analyzer    ResumeAnalyzer
	producer    *events.EventProducer
	maxAttempts int
	logger      *zap.SugaredLogger
}

func NewResumeService(s store.Store, extractor DocumentExtractor, analyzer ResumeAnalyzer, producer *events.EventProducer, maxAttempts int) *ResumeService {
	return &ResumeService{
		store:       s,
		extractor:   extractor,
		analyzer:    analyzer,
		producer:    producer,
		maxAttempts: maxAttempts,
		logger:      zap.S().Named("resume_service"),
	}
}

// CreateResume stores the uploaded document with status pending. The caller
// is expected to enqueue a resume.created work item.
func (s *ResumeService) CreateResume(ctx context.Context, ownerID string, raw []byte) (*model.Resume, error) {
	if len(raw) == 0 {
		return nil, NewErrValidation("resume content is empty")
	}
	return s.store.Resume().Create(ctx, &model.Resume{
		OwnerID:    ownerID,
		RawContent: raw,
		Status:     model.ResumeStatusPending,
	})
}

// UpdateResume replaces the raw content and rewinds the lifecycle to pending.
// This is the only path on which a ready resume may regress.
func (s *ResumeService) UpdateResume(ctx context.Context, id uuid.UUID, raw []byte) error {
	if len(raw) == 0 {
		return NewErrValidation("resume content is empty")
	}
	if err := s.store.Resume().UpdateRawContent(ctx, id, raw); err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrResumeNotFound(id)
		}
		return err
	}
	_, err := s.store.Resume().UpdateStatus(ctx, id,
		[]string{model.ResumeStatusReady, model.ResumeStatusFailed, model.ResumeStatusPending},
		model.ResumeStatusPending)
	return err
}

// GetStatus serves the polling surface.
func (s *ResumeService) GetStatus(ctx context.Context, id uuid.UUID) (*ResumeStatus, error) {
	resume, err := s.store.Resume().Get(ctx, id)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return nil, NewErrResumeNotFound(id)
		}
		return nil, err
	}

	status := &ResumeStatus{ID: resume.ID, Status: resume.Status}
	if resume.ExtractedData != nil {
		status.ExtractedData = &resume.ExtractedData.Data
	}
	return status, nil
}

// HandleResumeEvent consumes resume.created and resume.updated work items.
// Re-delivery for an already-ready resume is a no-op, so at-least-once
// delivery collapses into exactly-once effects.
func (s *ResumeService) HandleResumeEvent(ctx context.Context, item *model.WorkItem) error {
	payload, err := decodePayload[ResumeEventPayload](item.Payload)
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

	if resume.Status == model.ResumeStatusReady && item.Kind == model.KindResumeCreated {
		s.logger.Debugw("resume already processed", "resume", resume.ID)
		return nil
	}

	// processing is included so a crashed run can be picked up again; the
	// dispatcher's per-key ordering prevents two live runs for the same id
	applied, err := s.store.Resume().UpdateStatus(ctx, resume.ID,
		[]string{model.ResumeStatusPending, model.ResumeStatusReady, model.ResumeStatusFailed, model.ResumeStatusProcessing},
		model.ResumeStatusProcessing)
	if err != nil {
		return err
	}
	if !applied {
		return NewErrResumeNotFound(resume.ID)
	}

	if err := s.process(ctx, resume); err != nil {
		if item.Attempt >= s.maxAttempts || !IsTransient(err) {
			s.fail(ctx, resume, err)
		}
		return err
	}
	return nil
}

func (s *ResumeService) process(ctx context.Context, resume *model.Resume) error {
	text, err := s.extractor.Extract(ctx, resume.RawContent)
	if err != nil {
		return fmt.Errorf("extracting resume %s: %w", resume.ID, err)
	}

	data, err := s.analyzer.Analyze(ctx, text)
	if err != nil {
		return fmt.Errorf("analyzing resume %s: %w", resume.ID, err)
	}

	if err := s.store.Resume().SetExtracted(ctx, resume.ID, *data); err != nil {
		return fmt.Errorf("storing extraction for resume %s: %w", resume.ID, err)
	}

	s.notify(ctx, resume.OwnerID, "resume ready", "Your resume has been analyzed and is ready.", resume.ID)
	s.logger.Infow("resume processed", "resume", resume.ID)
	return nil
}

func (s *ResumeService) fail(ctx context.Context, resume *model.Resume, cause error) {
	if _, err := s.store.Resume().UpdateStatus(ctx, resume.ID,
		[]string{model.ResumeStatusProcessing}, model.ResumeStatusFailed); err != nil {
		s.logger.Errorw("failed to mark resume failed", "resume", resume.ID, "error", err)
		return
	}
	s.logger.Warnw("resume processing failed", "resume", resume.ID, "error", cause)
	s.notify(ctx, resume.OwnerID, "resume processing failed",
		"We could not process your resume. Please try uploading it again.", resume.ID)
}

func (s *ResumeService) notify(ctx context.Context, accountID, subject, message string, entityID uuid.UUID) {
	if s.producer == nil {
		return
	}
	body, _ := json.Marshal(events.NotificationEvent{
		AccountID: accountID,
		Subject:   subject,
		Message:   message,
		EntityID:  entityID.String(),
	})
	if err := s.producer.Write(ctx, events.NotificationMessageKind, bytes.NewReader(body)); err != nil {
		s.logger.Errorw("failed to queue notification", "account", accountID, "error", err)
	}
}
