package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/careerforge/careerforge/internal/store/model"
)

type Interview interface {
	Create(ctx context.Context, session *model.InterviewSession) (*model.InterviewSession, error)
	Get(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error)
	ListByStatus(ctx context.Context, status string) (model.InterviewSessionList, error)
	// UpdateStatus applies the transition only when the current status is one
	// of from and reports whether it was applied. The single winner of an
	// active -> expired/closed race owns the remote teardown.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error)
	Activate(ctx context.Context, id uuid.UUID, conversationID string, startedAt time.Time) (bool, error)
	SetConsumed(ctx context.Context, id uuid.UUID, consumedSeconds int) error
}

type InterviewStore struct {
	db *gorm.DB
}

// Make sure we conform to Interview interface
var _ Interview = (*InterviewStore)(nil)

func NewInterviewStore(db *gorm.DB) Interview {
	return &InterviewStore{db: db}
}

func (s *InterviewStore) Create(ctx context.Context, session *model.InterviewSession) (*model.InterviewSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = model.InterviewStatusCreated
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	if err := s.getDB(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("creating interview session: %w", err)
	}
	return session, nil
}

func (s *InterviewStore) Get(ctx context.Context, id uuid.UUID) (*model.InterviewSession, error) {
	var session model.InterviewSession
	result := s.getDB(ctx).First(&session, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying interview session: %w", result.Error)
	}
	return &session, nil
}

func (s *InterviewStore) ListByStatus(ctx context.Context, status string) (model.InterviewSessionList, error) {
	var sessions model.InterviewSessionList
	result := s.getDB(ctx).Where("status = ?", status).Find(&sessions)
	if result.Error != nil {
		return nil, fmt.Errorf("listing interview sessions: %w", result.Error)
	}
	return sessions, nil
}

func (s *InterviewStore) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	result := s.getDB(ctx).Model(&model.InterviewSession{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("updating interview status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *InterviewStore) Activate(ctx context.Context, id uuid.UUID, conversationID string, startedAt time.Time) (bool, error) {
	result := s.getDB(ctx).Model(&model.InterviewSession{}).
		Where("id = ? AND status = ?", id, model.InterviewStatusCreated).
		Updates(map[string]interface{}{
			"status":          model.InterviewStatusActive,
			"conversation_id": conversationID,
			"started_at":      startedAt,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("activating interview session: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *InterviewStore) SetConsumed(ctx context.Context, id uuid.UUID, consumedSeconds int) error {
	// never record consumption beyond the budget
	result := s.getDB(ctx).Model(&model.InterviewSession{}).
		Where("id = ? AND budget_seconds >= ?", id, consumedSeconds).
		Update("consumed_seconds", consumedSeconds)
	if result.Error != nil {
		return fmt.Errorf("recording consumed seconds: %w", result.Error)
	}
	return nil
}

func (s *InterviewStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
