package core

import (
	"errors"
	"fmt"
)

// Validation and state errors
var (
	ErrUnknownActionType = errors.New("schedcore: unrecognized action type")
	ErrInvalidPayload    = errors.New("schedcore: invalid action payload")
	ErrInvalidSchedule   = errors.New("schedcore: invalid schedule descriptor")
	ErrJobNotFound       = errors.New("schedcore: job not found")
	ErrJobNotActive      = errors.New("schedcore: job is not active")
	ErrExecutionFinished = errors.New("schedcore: execution already in a terminal state")
	ErrPayloadTooLarge   = errors.New("schedcore: action payload exceeds size limit")
)

// Agent budget errors
var (
	ErrToolBudgetExceeded  = errors.New("schedcore: agent run exceeded tool-call budget")
	ErrTokenBudgetExceeded = errors.New("schedcore: agent run exceeded token budget")
)

// WebhookStatusError indicates a webhook endpoint answered with a non-2xx
// HTTP status.
type WebhookStatusError struct {
	StatusCode int
	URL        string
}

func (e *WebhookStatusError) Error() string {
	return fmt.Sprintf("webhook %s returned status %d", e.URL, e.StatusCode)
}

// DispatchError wraps a failure to hand a job off for execution. The poll
// cycle records it on the job and moves on.
type DispatchError struct {
	JobID string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch job %s: %v", e.JobID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
