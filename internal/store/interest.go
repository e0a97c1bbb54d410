package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/careerforge/careerforge/internal/store/model"
)

type Interest interface {
	Subscribe(ctx context.Context, accountID string, categoryID uuid.UUID) error
	Unsubscribe(ctx context.Context, accountID string, categoryID uuid.UUID) error
	// ListAccounts returns the accounts subscribed to a category, in stable
	// order for deterministic fan-out.
	ListAccounts(ctx context.Context, categoryID uuid.UUID) ([]string, error)
}

type InterestStore struct {
	db *gorm.DB
}

// Make sure we conform to Interest interface
var _ Interest = (*InterestStore)(nil)

func NewInterestStore(db *gorm.DB) Interest {
	return &InterestStore{db: db}
}

func (s *InterestStore) Subscribe(ctx context.Context, accountID string, categoryID uuid.UUID) error {
	interest := model.UserInterest{
		AccountID:  accountID,
		CategoryID: categoryID,
		CreatedAt:  time.Now().UTC(),
	}
	err := s.getDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&interest).Error
	if err != nil {
		return fmt.Errorf("subscribing interest: %w", err)
	}
	return nil
}

func (s *InterestStore) Unsubscribe(ctx context.Context, accountID string, categoryID uuid.UUID) error {
	return s.getDB(ctx).
		Where("account_id = ? AND category_id = ?", accountID, categoryID).
		Delete(&model.UserInterest{}).Error
}

func (s *InterestStore) ListAccounts(ctx context.Context, categoryID uuid.UUID) ([]string, error) {
	var accounts []string
	err := s.getDB(ctx).Model(&model.UserInterest{}).
		Where("category_id = ?", categoryID).
		Order("account_id").
		Pluck("account_id", &accounts).Error
	if err != nil {
		return nil, fmt.Errorf("listing interested accounts: %w", err)
	}
	return accounts, nil
}

func (s *InterestStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
