package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careerforge/careerforge/internal/client"
)

// The error taxonomy drives both the dispatcher retry policy and the HTTP
// status mapping. Quota, rate and validation failures are permanent and fail
// fast without a charge; transient failures are retried with backoff and only
// surface once retries are exhausted.

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrResumeNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "resume")
}

func NewErrInterviewNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "interview session")
}

func NewErrPostingNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job posting")
}

func NewErrCategoryNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job category")
}

func (e *ErrResourceNotFound) Permanent() bool { return true }

type ErrQuotaExceeded struct {
	error
	Resource string
}

func NewErrQuotaExceeded(accountID, resource string) *ErrQuotaExceeded {
	return &ErrQuotaExceeded{
		error:    fmt.Errorf("account %s is out of %s for the current period", accountID, resource),
		Resource: resource,
	}
}

func (e *ErrQuotaExceeded) Permanent() bool { return true }

type ErrRateLimited struct {
	error
	RetryAfter time.Duration
}

func NewErrRateLimited(key string, retryAfter time.Duration) *ErrRateLimited {
	return &ErrRateLimited{
		error:      fmt.Errorf("too many requests for %s, retry in %s", key, retryAfter),
		RetryAfter: retryAfter,
	}
}

func (e *ErrRateLimited) Permanent() bool { return true }

type ErrValidation struct {
	error
}

func NewErrValidation(message string) *ErrValidation {
	return &ErrValidation{fmt.Errorf("invalid input: %s", message)}
}

func (e *ErrValidation) Permanent() bool { return true }

// IsTransient reports whether the failure may succeed on retry. Provider
// outages and timeouts are transient; everything marked permanent is not.
func IsTransient(err error) bool {
	var p *client.ProviderError
	if errors.As(err, &p) {
		return p.Transient()
	}

	var perm interface{ Permanent() bool }
	if errors.As(err, &perm) {
		return !perm.Permanent()
	}
	return true
}
