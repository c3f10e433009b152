package agent

import (
	"context"
	"errors"

	"github.com/oakline/schedcore/pkg/core"
)

// ErrRuntimeUnconfigured is returned by the placeholder runtime.
var ErrRuntimeUnconfigured = errors.New("schedcore: agent runtime not configured")

type unconfiguredRuntime struct{}

func (unconfiguredRuntime) StreamRun(context.Context, core.RunRequest) error {
	return ErrRuntimeUnconfigured
}

// Unconfigured returns a runtime that fails every run. Deployments
// without a model-calling backend use it so agent_task jobs fail cleanly
// through the circuit breaker instead of hanging.
func Unconfigured() core.AgentRuntime {
	return unconfiguredRuntime{}
}
