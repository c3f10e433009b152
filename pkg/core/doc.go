// Package core provides the fundamental types and interfaces for schedcore.
//
// This package contains:
//   - Job, Execution, and Checkpoint data models with GORM annotations
//   - Action payload and result types
//   - Collaborator interfaces (job store, conversation store, notification
//     sink, agent runtime)
//   - Event types for engine monitoring
//   - Error types for job execution
//
// Most users should import the root package github.com/oakline/schedcore
// instead of this package directly.
package core
