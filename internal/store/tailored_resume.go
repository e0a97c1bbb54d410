package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/careerforge/careerforge/internal/store/model"
)

type TailoredResume interface {
	// Upsert creates the variant or, when a row for the same (resume, job)
	// pair exists, refreshes its content and status while preserving the row
	// identity.
	Upsert(ctx context.Context, tailored *model.TailoredResume) (*model.TailoredResume, error)
	Get(ctx context.Context, resumeID uuid.UUID, jobID string) (*model.TailoredResume, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.TailoredResume, error)
	ListByResume(ctx context.Context, resumeID uuid.UUID) ([]model.TailoredResume, error)
}

type TailoredResumeStore struct {
	db *gorm.DB
}

// Make sure we conform to TailoredResume interface
var _ TailoredResume = (*TailoredResumeStore)(nil)

func NewTailoredResumeStore(db *gorm.DB) TailoredResume {
	return &TailoredResumeStore{db: db}
}

func (s *TailoredResumeStore) Upsert(ctx context.Context, tailored *model.TailoredResume) (*model.TailoredResume, error) {
	if tailored.ID == uuid.Nil {
		tailored.ID = uuid.New()
	}
	if tailored.CreatedAt.IsZero() {
		tailored.CreatedAt = time.Now().UTC()
	}

	err := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resume_id"}, {Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "status", "updated_at"}),
	}).Create(tailored).Error
	if err != nil {
		return nil, fmt.Errorf("upserting tailored resume: %w", err)
	}

	// re-read so the caller sees the preserved row identity on conflict
	return s.Get(ctx, tailored.ResumeID, tailored.JobID)
}

func (s *TailoredResumeStore) Get(ctx context.Context, resumeID uuid.UUID, jobID string) (*model.TailoredResume, error) {
	var tailored model.TailoredResume
	result := s.getDB(ctx).First(&tailored, "resume_id = ? AND job_id = ?", resumeID, jobID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying tailored resume: %w", result.Error)
	}
	return &tailored, nil
}

func (s *TailoredResumeStore) GetByID(ctx context.Context, id uuid.UUID) (*model.TailoredResume, error) {
	var tailored model.TailoredResume
	result := s.getDB(ctx).First(&tailored, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying tailored resume: %w", result.Error)
	}
	return &tailored, nil
}

func (s *TailoredResumeStore) ListByResume(ctx context.Context, resumeID uuid.UUID) ([]model.TailoredResume, error) {
	var tailored []model.TailoredResume
	result := s.getDB(ctx).Where("resume_id = ?", resumeID).Order("created_at").Find(&tailored)
	if result.Error != nil {
		return nil, fmt.Errorf("listing tailored resumes: %w", result.Error)
	}
	return tailored, nil
}

func (s *TailoredResumeStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
