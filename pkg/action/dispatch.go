package action

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oakline/schedcore/pkg/agent"
	"github.com/oakline/schedcore/pkg/core"
)

// DefaultWebhookTimeout bounds one webhook POST.
const DefaultWebhookTimeout = 30 * time.Second

// Deps are the collaborators the action handlers write to.
type Deps struct {
	Conversations core.ConversationStore
	Notifications core.NotificationSink
	Tasks         core.TaskStore
	Agents        core.AgentDirectory
	AgentRunner   *agent.Runner
	AgentTools    agent.Toolset
	HTTPClient    *http.Client
}

// Dispatcher is the polymorphic switch over action kinds. Each handler is
// a function from job to a uniform Result; an unrecognized kind is a
// failure, never a silent no-op.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher with the given collaborators.
func NewDispatcher(deps Deps, opts ...Option) *Dispatcher {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	d := &Dispatcher{deps: deps, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the handler for the job's action kind. Panics inside a
// handler are converted to failed results so they converge on the same
// circuit-breaker path as ordinary action failures.
func (d *Dispatcher) Dispatch(ctx context.Context, job *core.Job) (result core.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action handler panicked",
				"job_id", job.ID,
				"action", job.ActionType,
				"panic", r,
			)
			result = core.Result{Success: false, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	payload, err := core.DecodePayload(job.ActionType, job.ActionPayload)
	if err != nil {
		return core.Failure(err)
	}

	var data map[string]any
	switch job.ActionType {
	case core.ActionNotify:
		data, err = d.notify(ctx, job, payload)
	case core.ActionAgentTask:
		data, err = d.agentTask(ctx, job, payload)
	case core.ActionWebhook:
		data, err = d.webhook(ctx, job, payload)
	default:
		err = fmt.Errorf("%w: %q", core.ErrUnknownActionType, job.ActionType)
	}

	if err != nil {
		return core.Failure(err)
	}
	return core.Result{Success: true, Data: data}
}

// linkedTaskID resolves the task a job is tied to, preferring the payload
// override.
func linkedTaskID(job *core.Job, payload *core.Payload) string {
	if payload.TaskID != "" {
		return payload.TaskID
	}
	return job.TaskID
}
