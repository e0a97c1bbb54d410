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

type Resume interface {
	Create(ctx context.Context, resume *model.Resume) (*model.Resume, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Resume, error)
	List(ctx context.Context, ownerID string) (model.ResumeList, error)
	// UpdateStatus applies the transition only when the current status is one
	// of from. It reports whether the transition was applied, which lets the
	// caller enforce monotonic lifecycle progress.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error)
	// SetExtracted stores the extraction record and moves the resume to ready
	// in a single update.
	SetExtracted(ctx context.Context, id uuid.UUID, data model.ResumeData) error
	UpdateRawContent(ctx context.Context, id uuid.UUID, raw []byte) error
	ListStalePending(ctx context.Context, olderThan time.Time) (model.ResumeList, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ResumeStore struct {
	db *gorm.DB
}

// Make sure we conform to Resume interface
var _ Resume = (*ResumeStore)(nil)

func NewResumeStore(db *gorm.DB) Resume {
	return &ResumeStore{db: db}
}

func (s *ResumeStore) Create(ctx context.Context, resume *model.Resume) (*model.Resume, error) {
	if resume.ID == uuid.Nil {
		resume.ID = uuid.New()
	}
	if resume.Status == "" {
		resume.Status = model.ResumeStatusPending
	}
	if resume.CreatedAt.IsZero() {
		resume.CreatedAt = time.Now().UTC()
	}

	if err := s.getDB(ctx).Create(resume).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating resume: %w", err)
	}
	return resume, nil
}

func (s *ResumeStore) Get(ctx context.Context, id uuid.UUID) (*model.Resume, error) {
	var resume model.Resume
	result := s.getDB(ctx).First(&resume, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying resume: %w", result.Error)
	}
	return &resume, nil
}

func (s *ResumeStore) List(ctx context.Context, ownerID string) (model.ResumeList, error) {
	var resumes model.ResumeList
	result := s.getDB(ctx).Where("owner_id = ?", ownerID).Order("created_at").Find(&resumes)
	if result.Error != nil {
		return nil, fmt.Errorf("listing resumes: %w", result.Error)
	}
	return resumes, nil
}

func (s *ResumeStore) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string) (bool, error) {
	result := s.getDB(ctx).Model(&model.Resume{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("updating resume status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *ResumeStore) SetExtracted(ctx context.Context, id uuid.UUID, data model.ResumeData) error {
	result := s.getDB(ctx).Model(&model.Resume{}).
		Where("id = ? AND status = ?", id, model.ResumeStatusProcessing).
		Updates(map[string]interface{}{
			"extracted_data": model.MakeJSONField(data),
			"status":         model.ResumeStatusReady,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("storing extraction record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ResumeStore) UpdateRawContent(ctx context.Context, id uuid.UUID, raw []byte) error {
	result := s.getDB(ctx).Model(&model.Resume{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"raw_content": raw,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("updating resume content: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ResumeStore) ListStalePending(ctx context.Context, olderThan time.Time) (model.ResumeList, error) {
	var resumes model.ResumeList
	result := s.getDB(ctx).
		Where("status = ? AND created_at < ?", model.ResumeStatusPending, olderThan).
		Find(&resumes)
	if result.Error != nil {
		return nil, fmt.Errorf("listing stale resumes: %w", result.Error)
	}
	return resumes, nil
}

func (s *ResumeStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).Delete(&model.Resume{}, "id = ?", id)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (s *ResumeStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
