// Package agent wraps the external model-calling runtime with hard
// ceilings on tool calls and token spend, and builds the fixed toolset
// available to scheduled agent runs.
package agent
