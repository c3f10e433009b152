package core

import (
	"context"
	"encoding/json"
)

// Tool is one capability exposed to an agent run. Execute performs the
// underlying effect; implementations keep effects idempotent where the
// backing store allows it.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Execute     func(ctx context.Context, args json.RawMessage) (any, error)
}

// RunMessage is one entry in the seed transcript of an agent run.
type RunMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports tokens consumed by one model turn.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Total returns combined input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// RunRequest describes one agent run handed to the model-calling runtime.
type RunRequest struct {
	SystemPrompt string
	Messages     []RunMessage
	Tools        []Tool
	MaxSteps     int
	// OnUsage is invoked after every model turn with that turn's usage.
	OnUsage func(TokenUsage)
}

// AgentRuntime is the external "agent + tools" capability. StreamRun
// drives the tool-calling loop until the model finishes or a tool or the
// runtime returns an error.
type AgentRuntime interface {
	StreamRun(ctx context.Context, req RunRequest) error
}
