package main

import (
	"context"
	"net/http"
	"time"

	"github.com/oakline/schedcore/pkg/action"
	"github.com/oakline/schedcore/pkg/core"
)

// staticAgents resolves every agent to a minimal profile. The dashboard
// that owns real agent profiles lives outside this engine.
type staticAgents struct{}

func (staticAgents) GetAgent(_ context.Context, agentID string) (*core.AgentProfile, error) {
	return &core.AgentProfile{
		ID:           agentID,
		Name:         "agent-" + agentID,
		SystemPrompt: "You are an assistant executing a scheduled task.",
	}, nil
}

// noMemory is the empty stand-in for the external memory search
// subsystem.
type noMemory struct{}

func (noMemory) Search(context.Context, string, string, int) ([]core.MemoryHit, error) {
	return nil, nil
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = action.DefaultWebhookTimeout
	}
	return &http.Client{Timeout: timeout}
}
