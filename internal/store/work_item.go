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

type WorkItem interface {
	Enqueue(ctx context.Context, item *model.WorkItem) (*model.WorkItem, error)
	Get(ctx context.Context, id uuid.UUID) (*model.WorkItem, error)
	// Claim transitions up to limit due pending items to running. Items
	// sharing an entity key are claimed one at a time and never while another
	// item for the same key is running.
	Claim(ctx context.Context, now time.Time, limit int) ([]model.WorkItem, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Retry(ctx context.Context, id uuid.UUID, notBefore time.Time, reason string) error
	DeadLetter(ctx context.Context, id uuid.UUID, reason string) error
	// HasOpen reports whether a non-terminal item exists for the entity key.
	HasOpen(ctx context.Context, entityKey string) (bool, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

type WorkItemStore struct {
	db *gorm.DB
}

// Make sure we conform to WorkItem interface
var _ WorkItem = (*WorkItemStore)(nil)

func NewWorkItemStore(db *gorm.DB) WorkItem {
	return &WorkItemStore{db: db}
}

func (s *WorkItemStore) Enqueue(ctx context.Context, item *model.WorkItem) (*model.WorkItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = model.WorkItemStatusPending
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}
	if item.NotBefore.IsZero() {
		item.NotBefore = item.EnqueuedAt
	}

	if err := s.getDB(ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("enqueuing work item: %w", err)
	}
	return item, nil
}

func (s *WorkItemStore) Get(ctx context.Context, id uuid.UUID) (*model.WorkItem, error) {
	var item model.WorkItem
	result := s.getDB(ctx).First(&item, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying work item: %w", result.Error)
	}
	return &item, nil
}

func (s *WorkItemStore) Claim(ctx context.Context, now time.Time, limit int) ([]model.WorkItem, error) {
	db := s.getDB(ctx)

	// Pick the oldest due pending item per entity key, skipping keys that
	// already have a running item. The claim itself is a guarded update so
	// concurrent dispatchers cannot grab the same item twice.
	var candidates []model.WorkItem
	err := db.Raw(`
		SELECT w.* FROM work_items w
		WHERE w.status = ?
		  AND w.not_before <= ?
		  AND NOT EXISTS (
		    SELECT 1 FROM work_items r
		    WHERE r.entity_key = w.entity_key AND r.status = ?)
		  AND NOT EXISTS (
		    SELECT 1 FROM work_items p
		    WHERE p.entity_key = w.entity_key AND p.status = ?
		      AND (p.enqueued_at < w.enqueued_at OR (p.enqueued_at = w.enqueued_at AND p.id < w.id)))
		ORDER BY w.enqueued_at
		LIMIT ?`,
		model.WorkItemStatusPending,
		now,
		model.WorkItemStatusRunning,
		model.WorkItemStatusPending,
		limit,
	).Scan(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("selecting claimable work items: %w", err)
	}

	claimed := make([]model.WorkItem, 0, len(candidates))
	for i := range candidates {
		item := candidates[i]
		startedAt := now
		result := db.Model(&model.WorkItem{}).
			Where("id = ? AND status = ?", item.ID, model.WorkItemStatusPending).
			Updates(map[string]interface{}{
				"status":     model.WorkItemStatusRunning,
				"attempt":    gorm.Expr("attempt + 1"),
				"started_at": startedAt,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("claiming work item %s: %w", item.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		item.Status = model.WorkItemStatusRunning
		item.Attempt++
		item.StartedAt = &startedAt
		claimed = append(claimed, item)
	}

	return claimed, nil
}

func (s *WorkItemStore) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, model.WorkItemStatusSucceeded, "")
}

func (s *WorkItemStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(ctx, id, model.WorkItemStatusFailed, reason)
}

func (s *WorkItemStore) DeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(ctx, id, model.WorkItemStatusDeadLettered, reason)
}

func (s *WorkItemStore) finish(ctx context.Context, id uuid.UUID, status, reason string) error {
	result := s.getDB(ctx).Model(&model.WorkItem{}).
		Where("id = ? AND status = ?", id, model.WorkItemStatusRunning).
		Updates(map[string]interface{}{
			"status":      status,
			"last_error":  reason,
			"finished_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("finishing work item %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *WorkItemStore) Retry(ctx context.Context, id uuid.UUID, notBefore time.Time, reason string) error {
	result := s.getDB(ctx).Model(&model.WorkItem{}).
		Where("id = ? AND status = ?", id, model.WorkItemStatusRunning).
		Updates(map[string]interface{}{
			"status":     model.WorkItemStatusPending,
			"not_before": notBefore,
			"last_error": reason,
			"started_at": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("retrying work item %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *WorkItemStore) HasOpen(ctx context.Context, entityKey string) (bool, error) {
	var count int64
	err := s.getDB(ctx).Model(&model.WorkItem{}).
		Where("entity_key = ?", entityKey).
		Where("status IN ?", []string{model.WorkItemStatusPending, model.WorkItemStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting open work items: %w", err)
	}
	return count > 0, nil
}

func (s *WorkItemStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.getDB(ctx).
		Where("status IN ?", []string{
			model.WorkItemStatusSucceeded,
			model.WorkItemStatusFailed,
			model.WorkItemStatusDeadLettered,
		}).
		Where("finished_at < ?", olderThan).
		Delete(&model.WorkItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("purging work items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *WorkItemStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
