// Package runner executes individual tasks on behalf of the scheduler.
// The default implementation records run history and per-task
// configuration state; the actual feed work is supplied by the caller.
package runner
