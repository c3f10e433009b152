// Package workflow executes one job's action as a sequence of durable,
// independently-retryable steps anchored on an execution record.
package workflow
