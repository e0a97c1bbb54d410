package client

import (
	"context"
	"time"
)

// BillingClient fetches plan entitlements from the external billing provider.
type BillingClient struct {
	httpClient
}

func NewBillingClient(base string, timeout time.Duration) *BillingClient {
	return &BillingClient{newHTTPClient(base, "billing", timeout)}
}

// Entitlements are the per-period consumable limits granted by the account's
// plan.
type Entitlements struct {
	Credits          int64 `json:"credits"`
	InterviewMinutes int64 `json:"interview_minutes"`
	JobMatches       int64 `json:"job_matches"`
	PeriodDays       int   `json:"period_days"`
}

type entitlementsRequest struct {
	AccountID string `json:"account_id"`
}

func (c *BillingClient) Entitlements(ctx context.Context, accountID string) (*Entitlements, error) {
	var out Entitlements
	if err := c.postJSON(ctx, "/v1/entitlements", entitlementsRequest{AccountID: accountID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StaticBillingProvider serves the same entitlements for every account. It
// backs deployments that have no billing service configured.
type StaticBillingProvider struct {
	Defaults Entitlements
}

func (p *StaticBillingProvider) Entitlements(_ context.Context, _ string) (*Entitlements, error) {
	ent := p.Defaults
	return &ent, nil
}
