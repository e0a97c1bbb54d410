package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ProviderError carries the HTTP outcome of a failed provider call so callers
// can distinguish retryable outages from rejected inputs.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether the call may succeed on retry.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Permanent is the inverse of Transient; it feeds the dispatcher retry
// classification.
func (e *ProviderError) Permanent() bool {
	return !e.Transient()
}

type httpClient struct {
	base     string
	provider string
	client   *http.Client
}

func newHTTPClient(base, provider string, timeout time.Duration) httpClient {
	return httpClient{
		base:     base,
		provider: provider,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c httpClient) postJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "encoding %s request", c.provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "building %s request", c.provider)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// network failures and timeouts are retryable
		return &ProviderError{Provider: c.provider, StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s response", c.provider)
	}
	return nil
}

func (c httpClient) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+path, nil)
	if err != nil {
		return errors.Wrapf(err, "building %s request", c.provider)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: c.provider, StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	defer resp.Body.Close()

	// deleting an already-deleted remote resource is a no-op
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
