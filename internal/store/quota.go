package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/careerforge/careerforge/internal/store/model"
)

type Quota interface {
	Get(ctx context.Context, accountID, resource string) (*model.QuotaLedger, error)
	// Ensure creates the ledger entry when missing and refreshes the limit
	// from the plan entitlement.
	Ensure(ctx context.Context, accountID, resource string, limit int64, periodStart time.Time) error
	// Rollover resets consumption when the current period ended before the
	// given boundary. Applied lazily before consume/read.
	Rollover(ctx context.Context, accountID, resource string, boundary, newPeriodStart time.Time) error
	// Consume atomically reserves amount against the limit. The check and the
	// increment happen in a single guarded update so concurrent consumers can
	// never jointly exceed the limit.
	Consume(ctx context.Context, accountID, resource string, amount int64) (bool, error)
	// Refund returns a previously reserved amount, clamped at zero.
	Refund(ctx context.Context, accountID, resource string, amount int64) error
}

type QuotaStore struct {
	db *gorm.DB
}

// Make sure we conform to Quota interface
var _ Quota = (*QuotaStore)(nil)

func NewQuotaStore(db *gorm.DB) Quota {
	return &QuotaStore{db: db}
}

func (s *QuotaStore) Get(ctx context.Context, accountID, resource string) (*model.QuotaLedger, error) {
	var ledger model.QuotaLedger
	result := s.getDB(ctx).First(&ledger, "account_id = ? AND resource = ?", accountID, resource)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying quota ledger: %w", result.Error)
	}
	return &ledger, nil
}

func (s *QuotaStore) Ensure(ctx context.Context, accountID, resource string, limit int64, periodStart time.Time) error {
	ledger := model.QuotaLedger{
		AccountID:   accountID,
		Resource:    resource,
		PeriodStart: periodStart,
		LimitValue:  limit,
	}
	err := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "resource"}},
		DoUpdates: clause.AssignmentColumns([]string{"limit_value"}),
	}).Create(&ledger).Error
	if err != nil {
		return fmt.Errorf("ensuring quota ledger: %w", err)
	}
	return nil
}

func (s *QuotaStore) Rollover(ctx context.Context, accountID, resource string, boundary, newPeriodStart time.Time) error {
	result := s.getDB(ctx).Model(&model.QuotaLedger{}).
		Where("account_id = ? AND resource = ? AND period_start <= ?", accountID, resource, boundary).
		Updates(map[string]interface{}{
			"consumed":     0,
			"period_start": newPeriodStart,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("rolling over quota period: %w", result.Error)
	}
	return nil
}

func (s *QuotaStore) Consume(ctx context.Context, accountID, resource string, amount int64) (bool, error) {
	result := s.getDB(ctx).Model(&model.QuotaLedger{}).
		Where("account_id = ? AND resource = ? AND consumed + ? <= limit_value", accountID, resource, amount).
		Updates(map[string]interface{}{
			"consumed":   gorm.Expr("consumed + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("consuming quota: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *QuotaStore) Refund(ctx context.Context, accountID, resource string, amount int64) error {
	result := s.getDB(ctx).Model(&model.QuotaLedger{}).
		Where("account_id = ? AND resource = ?", accountID, resource).
		Updates(map[string]interface{}{
			"consumed":   gorm.Expr("CASE WHEN consumed >= ? THEN consumed - ? ELSE 0 END", amount, amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("refunding quota: %w", result.Error)
	}
	return nil
}

func (s *QuotaStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
