package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
	"github.com/careerforge/careerforge/pkg/metrics"
)

// ConversationProvider manages remote interview conversations.
type ConversationProvider interface {
	CreateConversation(ctx context.Context, userID string) (string, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// InterviewService enforces the wall-clock budget on interview sessions.
// Whichever caller wins the guarded transition out of active owns the remote
// conversation teardown, so the provider-side delete happens once even when
// the sweep and an explicit close race.
type InterviewService struct {
	store         store.Store
	conversations ConversationProvider
	quota         *QuotaService
	sweepInterval time.Duration
	logger        *zap.SugaredLogger
}

func NewInterviewService(s store.Store, conversations ConversationProvider, quota *QuotaService, sweepInterval time.Duration) *InterviewService {
	return &InterviewService{
		store:         s,
		conversations: conversations,
		quota:         quota,
		sweepInterval: sweepInterval,
		logger:        zap.S().Named("interview_service"),
	}
}

// CreateSession reserves the requested minutes against the account's quota
// and records the session with status created. Activation happens when the
// interview.created work item is processed.
func (s *InterviewService) CreateSession(ctx context.Context, userID string, budgetMinutes int) (*model.InterviewSession, error) {
	if budgetMinutes <= 0 {
		return nil, NewErrValidation("budget minutes must be positive")
	}
	if err := s.quota.Reserve(ctx, userID, model.ResourceInterviewMinutes, int64(budgetMinutes)); err != nil {
		return nil, err
	}

	session, err := s.store.Interview().Create(ctx, &model.InterviewSession{
		UserID:        userID,
		Status:        model.InterviewStatusCreated,
		BudgetSeconds: budgetMinutes * 60,
	})
	if err != nil {
		s.quota.Release(ctx, userID, model.ResourceInterviewMinutes, int64(budgetMinutes))
		return nil, err
	}
	return session, nil
}

// HandleInterviewEvent consumes interview.created work items: it provisions
// the remote conversation and flips the session to active. A session that
// already left created (redelivery, or closed before activation) is left
// alone.
func (s *InterviewService) HandleInterviewEvent(ctx context.Context, item *model.WorkItem) error {
	payload, err := decodePayload[InterviewEventPayload](item.Payload)
	if err != nil {
		return err
	}

	session, err := s.store.Interview().Get(ctx, payload.SessionID)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrInterviewNotFound(payload.SessionID)
		}
		return err
	}
	if session.Status != model.InterviewStatusCreated {
		s.logger.Debugw("session already activated", "session", session.ID, "status", session.Status)
		return nil
	}

	conversationID, err := s.conversations.CreateConversation(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("creating conversation for session %s: %w", session.ID, err)
	}

	applied, err := s.store.Interview().Activate(ctx, session.ID, conversationID, time.Now())
	if err != nil || !applied {
		// lost the race, the conversation we created is orphaned
		if derr := s.conversations.DeleteConversation(ctx, conversationID); derr != nil {
			s.logger.Errorw("failed to delete orphaned conversation", "conversation", conversationID, "error", derr)
		}
		return err
	}

	s.logger.Infow("interview session activated", "session", session.ID, "conversation", conversationID)
	return nil
}

// CloseSession ends a session early. Closing an already terminal session is a
// no-op so clients can retry safely.
func (s *InterviewService) CloseSession(ctx context.Context, id uuid.UUID) error {
	session, err := s.store.Interview().Get(ctx, id)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return NewErrInterviewNotFound(id)
		}
		return err
	}

	switch session.Status {
	case model.InterviewStatusExpired, model.InterviewStatusClosed:
		return nil
	}

	won, err := s.store.Interview().UpdateStatus(ctx, id,
		[]string{model.InterviewStatusCreated, model.InterviewStatusActive}, model.InterviewStatusClosed)
	if err != nil {
		return err
	}
	if !won {
		// someone else finished the session, teardown is theirs
		return nil
	}

	if session.Status == model.InterviewStatusActive {
		s.recordConsumed(ctx, session, time.Now())
	}
	s.teardown(ctx, session)
	s.logger.Infow("interview session closed", "session", id)
	return nil
}

// RemainingSeconds reports the live remaining budget.
func (s *InterviewService) RemainingSeconds(ctx context.Context, id uuid.UUID) (int, error) {
	session, err := s.store.Interview().Get(ctx, id)
	if err != nil {
		if err == store.ErrRecordNotFound {
			return 0, NewErrInterviewNotFound(id)
		}
		return 0, err
	}
	return session.Remaining(time.Now()), nil
}

// Run sweeps active sessions until the context is cancelled.
func (s *InterviewService) Run(ctx context.Context) error {
	ticker := jitterbug.New(s.sweepInterval, &jitterbug.Norm{Stdev: s.sweepInterval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		}
	}
}

// Tick performs one sweep pass: it persists consumption for active sessions
// and expires the ones whose budget ran out at the given instant.
func (s *InterviewService) Tick(ctx context.Context, now time.Time) {
	sessions, err := s.store.Interview().ListByStatus(ctx, model.InterviewStatusActive)
	if err != nil {
		s.logger.Errorw("failed to list active sessions", "error", err)
		return
	}

	for i := range sessions {
		session := &sessions[i]
		s.recordConsumed(ctx, session, now)

		if session.Remaining(now) > 0 {
			continue
		}

		won, err := s.store.Interview().UpdateStatus(ctx, session.ID,
			[]string{model.InterviewStatusActive}, model.InterviewStatusExpired)
		if err != nil {
			s.logger.Errorw("failed to expire session", "session", session.ID, "error", err)
			continue
		}
		if !won {
			continue
		}

		s.teardown(ctx, session)
		metrics.IncreaseInterviewExpirationsMetric()
		s.logger.Infow("interview session expired", "session", session.ID)
	}
}

func (s *InterviewService) recordConsumed(ctx context.Context, session *model.InterviewSession, now time.Time) {
	if session.StartedAt == nil {
		return
	}
	consumed := int(now.Sub(*session.StartedAt).Seconds())
	if consumed <= session.ConsumedSeconds {
		return
	}
	if consumed > session.BudgetSeconds {
		consumed = session.BudgetSeconds
	}
	if err := s.store.Interview().SetConsumed(ctx, session.ID, consumed); err != nil {
		s.logger.Errorw("failed to record consumption", "session", session.ID, "error", err)
		return
	}
	session.ConsumedSeconds = consumed
}

func (s *InterviewService) teardown(ctx context.Context, session *model.InterviewSession) {
	if session.ConversationID == "" {
		return
	}
	if err := s.conversations.DeleteConversation(ctx, session.ConversationID); err != nil {
		s.logger.Errorw("failed to delete conversation", "conversation", session.ConversationID, "error", err)
	}
}
