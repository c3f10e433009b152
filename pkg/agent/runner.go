package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/security"
)

// Default ceilings for one agent run. They bound autonomous behavior
// triggered on a timer rather than by a human in a feedback loop.
const (
	DefaultMaxToolCalls = 25
	DefaultMaxTokens    = 100_000
)

// Runner executes bounded agent runs on top of an external runtime.
// The ceilings are enforced here, in the caller; the agent cannot
// negotiate them.
type Runner struct {
	runtime      core.AgentRuntime
	maxToolCalls int
	maxTokens    int
	logger       *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// MaxToolCalls sets the tool-invocation ceiling per run.
// Values are clamped to [1, security.MaxToolCalls].
func MaxToolCalls(n int) Option {
	return func(r *Runner) { r.maxToolCalls = security.ClampToolCalls(n) }
}

// MaxTokens sets the total token budget per run.
// Values are clamped to [1, security.MaxTokenBudget].
func MaxTokens(n int) Option {
	return func(r *Runner) { r.maxTokens = security.ClampTokenBudget(n) }
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a bounded runner over the given runtime.
func NewRunner(runtime core.AgentRuntime, opts ...Option) *Runner {
	r := &Runner{
		runtime:      runtime,
		maxToolCalls: DefaultMaxToolCalls,
		maxTokens:    DefaultMaxTokens,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives one agent run. Exceeding either ceiling aborts the run and
// returns the budget error; a truncated run is never reported as success.
func (r *Runner) Run(ctx context.Context, systemPrompt, userMessage string, tools []core.Tool) error {
	// Tripping a ceiling cancels the run's context so a runtime that
	// ignores tool errors is still cut off.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b := &budget{maxCalls: r.maxToolCalls, maxTokens: r.maxTokens, cancel: cancel}

	bounded := make([]core.Tool, len(tools))
	for i, t := range tools {
		bounded[i] = b.wrap(t)
	}

	err := r.runtime.StreamRun(ctx, core.RunRequest{
		SystemPrompt: systemPrompt,
		Messages:     []core.RunMessage{{Role: "user", Content: userMessage}},
		Tools:        bounded,
		MaxSteps:     r.maxToolCalls,
		OnUsage:      b.addUsage,
	})

	if tripped := b.trippedErr(); tripped != nil {
		calls, tokens := b.totals()
		r.logger.Warn("agent run aborted at budget ceiling",
			"tool_calls", calls,
			"tokens", tokens,
			"error", tripped,
		)
		return fmt.Errorf("%w (%d tool calls, %d tokens)", tripped, calls, tokens)
	}
	return err
}

// budget threads the step counter and token accumulator through the
// tool-calling loop. It fails closed: once a ceiling is hit every further
// tool call errors.
type budget struct {
	mu        sync.Mutex
	maxCalls  int
	maxTokens int
	calls     int
	tokens    int
	tripped   error
	cancel    context.CancelFunc
}

// trip records the first ceiling error and cancels the run. Callers must
// hold b.mu.
func (b *budget) trip(err error) {
	if b.tripped != nil {
		return
	}
	b.tripped = err
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *budget) wrap(t core.Tool) core.Tool {
	wrapped := t
	inner := t.Execute
	wrapped.Execute = func(ctx context.Context, args json.RawMessage) (any, error) {
		if err := b.consumeCall(); err != nil {
			return nil, err
		}
		return inner(ctx, args)
	}
	return wrapped
}

func (b *budget) consumeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped != nil {
		return b.tripped
	}
	if b.tokens > b.maxTokens {
		b.trip(core.ErrTokenBudgetExceeded)
		return b.tripped
	}
	if b.calls >= b.maxCalls {
		b.trip(core.ErrToolBudgetExceeded)
		return b.tripped
	}
	b.calls++
	return nil
}

func (b *budget) addUsage(u core.TokenUsage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens += u.Total()
	if b.tokens > b.maxTokens {
		b.trip(core.ErrTokenBudgetExceeded)
	}
}

func (b *budget) trippedErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

func (b *budget) totals() (calls, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.tokens
}
