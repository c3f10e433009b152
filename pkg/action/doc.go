// Package action dispatches a job to the handler for its action kind
// (notify, agent_task, webhook) and normalizes the outcome.
package action
