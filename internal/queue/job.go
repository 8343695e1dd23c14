// Package queue implements the durable, at-least-once job queue: jobs
// persisted in a SQL table, claimed via SELECT ... FOR UPDATE SKIP LOCKED,
// and a typed dispatch API on top.
package queue

import (
	"time"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// Status is a Job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReserved  Status = "reserved"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one unit of durable work. AvailableAt controls visibility to Pop;
// ReservedAt is non-nil only while Status is reserved.
type Job struct {
	ID          ids.ID     `db:"id"`
	TenantID    ids.ID     `db:"tenant_id"`
	Queue       string     `db:"queue"`
	JobType     string     `db:"job_type"`
	Payload     []byte     `db:"payload"`
	Status      Status     `db:"status"`
	Priority    int        `db:"priority"`
	Attempts    int        `db:"attempts"`
	MaxAttempts int        `db:"max_attempts"`
	LastError   string     `db:"last_error"`
	AvailableAt time.Time  `db:"available_at"`
	ReservedAt  *time.Time `db:"reserved_at"`
	CompletedAt *time.Time `db:"completed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// HasTenant reports whether the job carries a non-nil tenant scope.
func (j *Job) HasTenant() bool {
	return !j.TenantID.IsNil()
}

// Retryable reports whether a failed job is eligible for another attempt.
func (j *Job) Retryable() bool {
	return j.Attempts < j.MaxAttempts
}

// Backoff computes the exponential-with-jitter retry delay for the job's
// current attempt count, per DESIGN.md's Open Question resolution:
// base * 2^(attempts-1), plus up to 20% jitter, capped at ceiling.
func Backoff(base time.Duration, attempts int, ceiling time.Duration, jitter func() float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d > ceiling {
			d = ceiling
			break
		}
	}
	if jitter != nil {
		d += time.Duration(float64(d) * 0.2 * jitter())
	}
	if d > ceiling {
		d = ceiling
	}
	return d
}
