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

type JobPosting interface {
	// Upsert inserts the posting or, when the dedupe key already exists,
	// refreshes posted_at and the descriptive metadata of the existing row.
	// The boolean result reports whether a new row was created.
	Upsert(ctx context.Context, posting *model.JobPosting) (*model.JobPosting, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*model.JobPosting, error)
	GetByDedupeKey(ctx context.Context, dedupeKey string) (*model.JobPosting, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID, status string) (model.JobPostingList, error)
	// SetStatus moves a posting between moderation and visible. It reports
	// whether the transition was applied.
	SetStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

type JobPostingStore struct {
	db *gorm.DB
}

// Make sure we conform to JobPosting interface
var _ JobPosting = (*JobPostingStore)(nil)

func NewJobPostingStore(db *gorm.DB) JobPosting {
	return &JobPostingStore{db: db}
}

func (s *JobPostingStore) Upsert(ctx context.Context, posting *model.JobPosting) (*model.JobPosting, bool, error) {
	if posting.ID == uuid.Nil {
		posting.ID = uuid.New()
	}
	if posting.CreatedAt.IsZero() {
		posting.CreatedAt = time.Now().UTC()
	}

	existing, err := s.GetByDedupeKey(ctx, posting.DedupeKey)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, false, err
	}
	created := existing == nil

	err = s.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dedupe_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"posted_at", "source_id", "external_id", "title", "company", "location", "updated_at",
		}),
	}).Create(posting).Error
	if err != nil {
		return nil, false, fmt.Errorf("upserting job posting: %w", err)
	}

	stored, err := s.GetByDedupeKey(ctx, posting.DedupeKey)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *JobPostingStore) Get(ctx context.Context, id uuid.UUID) (*model.JobPosting, error) {
	var posting model.JobPosting
	result := s.getDB(ctx).First(&posting, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job posting: %w", result.Error)
	}
	return &posting, nil
}

func (s *JobPostingStore) GetByDedupeKey(ctx context.Context, dedupeKey string) (*model.JobPosting, error) {
	var posting model.JobPosting
	result := s.getDB(ctx).First(&posting, "dedupe_key = ?", dedupeKey)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job posting: %w", result.Error)
	}
	return &posting, nil
}

func (s *JobPostingStore) ListByCategory(ctx context.Context, categoryID uuid.UUID, status string) (model.JobPostingList, error) {
	var postings model.JobPostingList
	q := s.getDB(ctx).Where("category_id = ?", categoryID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	result := q.Order("posted_at DESC").Find(&postings)
	if result.Error != nil {
		return nil, fmt.Errorf("listing job postings: %w", result.Error)
	}
	return postings, nil
}

func (s *JobPostingStore) SetStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	result := s.getDB(ctx).Model(&model.JobPosting{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("updating job posting status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *JobPostingStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
