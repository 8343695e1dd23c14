// Package runner hosts the periodic sweepers the core subsystems need to
// operate: job queue stale-reservation release, session cleanup, and
// cache TTL reconciliation. Each is a cron-scheduled Task driven by a
// Service built on robfig/cron.
package runner

import (
	"context"
	"time"
)

// Task is one cron-scheduled unit of background work.
type Task interface {
	// Name identifies the task in logs.
	Name() string
	// Schedule is a standard 6-field (seconds-included) cron expression.
	Schedule() string
	// Timeout bounds a single Run invocation.
	Timeout() time.Duration
	// Run executes one pass. Errors are logged; they do not stop future
	// invocations.
	Run(ctx context.Context) error
}
