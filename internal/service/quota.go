package service

import (
	"context"
	"time"

	"github.com/careerforge/careerforge/internal/client"
	"github.com/careerforge/careerforge/internal/store"
	"github.com/careerforge/careerforge/internal/store/model"
	"github.com/careerforge/careerforge/pkg/metrics"
)

// BillingProvider resolves the plan entitlements of an account.
type BillingProvider interface {
	Entitlements(ctx context.Context, accountID string) (*client.Entitlements, error)
}

// QuotaService mediates every consumable reservation: it syncs the ledger
// limit with the billing plan, applies the lazy period rollover and reserves
// atomically through the store.
type QuotaService struct {
	store   store.Store
	billing BillingProvider
}

func NewQuotaService(s store.Store, billing BillingProvider) *QuotaService {
	return &QuotaService{store: s, billing: billing}
}

// Reserve consumes amount of resource for the account. Returns
// ErrQuotaExceeded when the reservation would exceed the plan limit.
func (q *QuotaService) Reserve(ctx context.Context, accountID, resource string, amount int64) error {
	ent, err := q.billing.Entitlements(ctx, accountID)
	if err != nil {
		return err
	}

	limit := q.limitFor(ent, resource)
	now := time.Now().UTC()

	if err := q.store.Quota().Ensure(ctx, accountID, resource, limit, now); err != nil {
		return err
	}

	// roll the period over lazily: reset consumption when the period elapsed
	periodDays := ent.PeriodDays
	if periodDays <= 0 {
		periodDays = 30
	}
	boundary := now.AddDate(0, 0, -periodDays)
	if err := q.store.Quota().Rollover(ctx, accountID, resource, boundary, now); err != nil {
		return err
	}

	granted, err := q.store.Quota().Consume(ctx, accountID, resource, amount)
	if err != nil {
		return err
	}
	if !granted {
		metrics.IncreaseQuotaDenialsMetric(resource)
		return NewErrQuotaExceeded(accountID, resource)
	}
	return nil
}

// Release refunds a reservation whose work never produced anything, keeping
// the no-charge guarantee for failed attempts.
func (q *QuotaService) Release(ctx context.Context, accountID, resource string, amount int64) error {
	return q.store.Quota().Refund(ctx, accountID, resource, amount)
}

// Remaining reports the unconsumed amount for the account and resource. An
// account that never consumed anything has its full plan limit available.
func (q *QuotaService) Remaining(ctx context.Context, accountID, resource string) (int64, error) {
	ledger, err := q.store.Quota().Get(ctx, accountID, resource)
	if err == nil {
		return ledger.Remaining(), nil
	}
	if err != store.ErrRecordNotFound {
		return 0, err
	}

	ent, err := q.billing.Entitlements(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return q.limitFor(ent, resource), nil
}

func (q *QuotaService) limitFor(ent *client.Entitlements, resource string) int64 {
	switch resource {
	case model.ResourceCredits:
		return ent.Credits
	case model.ResourceInterviewMinutes:
		return ent.InterviewMinutes
	case model.ResourceJobMatches:
		return ent.JobMatches
	}
	return 0
}
