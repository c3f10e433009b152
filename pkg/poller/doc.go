// Package poller selects due jobs and hands each off to the workflow
// runner, bounding how many jobs one cycle claims.
package poller
