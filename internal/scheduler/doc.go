// Package scheduler triggers dispatch ticks on a cron or interval schedule.
//
// It is trigger-only: the job runs on cron's goroutine, overlapping runs are
// skipped, and an interval schedule's first run is spread by a random delay
// so restarted replicas do not fire in lockstep.
package scheduler
