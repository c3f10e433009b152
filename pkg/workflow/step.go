package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oakline/schedcore/pkg/core"
)

// stepState holds the checkpoints already persisted for an execution,
// keyed by step name.
type stepState struct {
	byStep map[string]*core.Checkpoint
}

func loadStepState(ctx context.Context, store core.JobStore, executionID string) (*stepState, error) {
	checkpoints, err := store.GetCheckpoints(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	st := &stepState{byStep: make(map[string]*core.Checkpoint, len(checkpoints))}
	for i := range checkpoints {
		st.byStep[checkpoints[i].Step] = &checkpoints[i]
	}
	return st, nil
}

// runStep executes fn once per execution. When a checkpoint for the step
// already exists the recorded result is replayed and fn is not called, so
// a durable side effect is never repeated after a crash.
func runStep[T any](ctx context.Context, store core.JobStore, exec *core.Execution, st *stepState, name string, fn func() (T, error)) (T, error) {
	var zero T

	if cp, ok := st.byStep[name]; ok {
		if cp.Error != "" {
			return zero, fmt.Errorf("%s", cp.Error)
		}
		var result T
		if err := json.Unmarshal(cp.Result, &result); err != nil {
			return zero, fmt.Errorf("unmarshal checkpoint %q: %w", name, err)
		}
		return result, nil
	}

	result, err := fn()

	cp := &core.Checkpoint{
		ExecutionID: exec.ID,
		JobID:       exec.JobID,
		Step:        name,
	}
	if err != nil {
		cp.Error = err.Error()
	} else {
		encoded, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return zero, fmt.Errorf("marshal step %q result: %w", name, marshalErr)
		}
		cp.Result = encoded
	}

	if saveErr := store.SaveCheckpoint(ctx, cp); saveErr != nil {
		return zero, fmt.Errorf("save checkpoint %q: %w", name, saveErr)
	}
	st.byStep[name] = cp

	return result, err
}
