// Package schedule provides next-run computation for scheduled jobs.
//
// This package includes:
//   - Schedule interface for computing a job's next run time
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() / CronIn() for cron expression-based schedules
//   - ForJob() resolving a job's schedule descriptor
//
// Most users should import the root package github.com/oakline/schedcore
// which re-exports these functions.
package schedule
