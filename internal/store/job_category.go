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

type JobCategory interface {
	Create(ctx context.Context, category *model.JobCategory) (*model.JobCategory, error)
	Get(ctx context.Context, id uuid.UUID) (*model.JobCategory, error)
	List(ctx context.Context) (model.JobCategoryList, error)
	// ListDue returns the active categories whose last fetch is older than
	// their refresh interval (or that were never fetched).
	ListDue(ctx context.Context, now time.Time) (model.JobCategoryList, error)
	// AdvanceFetched records a successful fetch. Failed fetches leave
	// last_fetched_at untouched so the next cycle retries the category.
	AdvanceFetched(ctx context.Context, id uuid.UUID, fetchedAt time.Time) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type JobCategoryStore struct {
	db *gorm.DB
}

// Make sure we conform to JobCategory interface
var _ JobCategory = (*JobCategoryStore)(nil)

func NewJobCategoryStore(db *gorm.DB) JobCategory {
	return &JobCategoryStore{db: db}
}

func (s *JobCategoryStore) Create(ctx context.Context, category *model.JobCategory) (*model.JobCategory, error) {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	if err := s.getDB(ctx).Create(category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job category: %w", err)
	}
	return category, nil
}

func (s *JobCategoryStore) Get(ctx context.Context, id uuid.UUID) (*model.JobCategory, error) {
	var category model.JobCategory
	result := s.getDB(ctx).First(&category, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job category: %w", result.Error)
	}
	return &category, nil
}

func (s *JobCategoryStore) List(ctx context.Context) (model.JobCategoryList, error) {
	var categories model.JobCategoryList
	result := s.getDB(ctx).Order("label").Find(&categories)
	if result.Error != nil {
		return nil, fmt.Errorf("listing job categories: %w", result.Error)
	}
	return categories, nil
}

func (s *JobCategoryStore) ListDue(ctx context.Context, now time.Time) (model.JobCategoryList, error) {
	var categories model.JobCategoryList
	result := s.getDB(ctx).
		Where("active = ?", true).
		Order("label").
		Find(&categories)
	if result.Error != nil {
		return nil, fmt.Errorf("listing due job categories: %w", result.Error)
	}

	// the refresh interval is per category, filter in memory
	due := make(model.JobCategoryList, 0, len(categories))
	for _, c := range categories {
		if c.Due(now) {
			due = append(due, c)
		}
	}
	return due, nil
}

func (s *JobCategoryStore) AdvanceFetched(ctx context.Context, id uuid.UUID, fetchedAt time.Time) error {
	result := s.getDB(ctx).Model(&model.JobCategory{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_fetched_at": fetchedAt,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("advancing last fetch: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobCategoryStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result := s.getDB(ctx).Model(&model.JobCategory{}).
		Where("id = ?", id).
		Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("updating job category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobCategoryStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
