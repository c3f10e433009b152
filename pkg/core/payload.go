package core

import (
	"encoding/json"
	"fmt"
)

// Payload is the action parameter union, keyed by the job's ActionType.
// Only the fields relevant to the action kind are populated.
type Payload struct {
	// notify
	Message string `json:"message,omitempty"`

	// agent_task
	Instruction string `json:"instruction,omitempty"`

	// webhook
	URL     string            `json:"url,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// TaskID optionally overrides the job-level linked task.
	TaskID string `json:"taskId,omitempty"`
}

// DecodePayload parses and validates a job's raw payload against its
// action type. A nil/empty payload decodes to the zero Payload, which is
// valid for notify and agent_task but not for webhook.
func DecodePayload(action ActionType, raw []byte) (*Payload, error) {
	p := &Payload{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if err := p.Validate(action); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that the payload carries the fields its action needs.
func (p *Payload) Validate(action ActionType) error {
	switch action {
	case ActionNotify, ActionAgentTask:
		return nil
	case ActionWebhook:
		if p.URL == "" {
			return fmt.Errorf("%w: webhook payload requires url", ErrInvalidPayload)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionType, action)
	}
}

// EncodePayload serializes a payload for storage on a Job row.
func EncodePayload(p *Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Result is the uniform outcome of dispatching one action.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Failure builds a failed Result from an error.
func Failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// RunOutcome summarizes one workflow run for the poll cycle report.
type RunOutcome struct {
	JobID   string `json:"jobId"`
	Title   string `json:"title"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"` // Lease already held elsewhere
	Error   string `json:"error,omitempty"`
}

// CycleResult is what the trigger entrypoint returns for one poll cycle.
type CycleResult struct {
	ProcessedCount int          `json:"processedCount"`
	SuccessCount   int          `json:"successCount"`
	Results        []RunOutcome `json:"results"`
}
