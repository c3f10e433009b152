package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/oakline/schedcore/pkg/core"
	"github.com/oakline/schedcore/pkg/security"
)

// maxWebhookResponse bounds how much of a webhook response body is read.
const maxWebhookResponse = 1 << 20

// webhook POSTs the job's identity merged with the configured body to the
// payload URL. Any non-2xx status is a failure carrying the status code.
func (d *Dispatcher) webhook(ctx context.Context, job *core.Job, payload *core.Payload) (map[string]any, error) {
	if err := security.ValidateWebhookURL(payload.URL); err != nil {
		return nil, fmt.Errorf("%w: bad webhook url %q", core.ErrInvalidPayload, payload.URL)
	}

	body := map[string]any{
		"jobId":      job.ID,
		"agentId":    job.AgentID,
		"title":      job.Title,
		"jobType":    job.JobType,
		"actionType": job.ActionType,
	}
	for k, v := range payload.Body {
		body[k] = v
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range payload.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.WebhookStatusError{StatusCode: resp.StatusCode, URL: payload.URL}
	}

	data := map[string]any{"statusCode": resp.StatusCode}
	// Best-effort parse; a non-JSON response is not an error.
	var parsed any
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		data["response"] = parsed
	}
	return data, nil
}
