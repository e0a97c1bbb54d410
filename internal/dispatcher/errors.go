package dispatcher

import (
	"errors"
	"fmt"
	"time"
)

// RequeueError asks the dispatcher to redeliver the item after a delay chosen
// by the handler, e.g. while a dependency has not reached the required state
// yet. Redeliveries still count against the attempt ceiling so the wait is
// bounded.
type RequeueError struct {
	After  time.Duration
	Reason string
}

func (e *RequeueError) Error() string {
	return fmt.Sprintf("requeue after %s: %s", e.After, e.Reason)
}

func Requeue(after time.Duration, reason string) *RequeueError {
	return &RequeueError{After: after, Reason: reason}
}

// permanentError marks failures that must not be retried: invalid input,
// exhausted quota. Implemented by the service error taxonomy.
type permanentError interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var p permanentError
	if errors.As(err, &p) {
		return p.Permanent()
	}
	return false
}

func asRequeue(err error) (*RequeueError, bool) {
	var r *RequeueError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
