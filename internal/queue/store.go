package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rustpress/rustpress-core/internal/database"
	"github.com/rustpress/rustpress-core/internal/ids"
)

// Error wraps store failures so callers can distinguish queue errors from
// other subsystem errors without depending on database/sql directly.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("queue: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("queue: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func wrapErr(message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Message: message, Cause: cause}
}

// Store persists jobs in a SQL table and implements the at-most-one-
// worker-per-job guarantee via SELECT ... FOR UPDATE SKIP LOCKED (MySQL,
// PostgreSQL) or plain SELECT+UPDATE under SQLite's single-writer
// serialization (SQLite has no row-level locking to skip).
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an existing connection. Callers typically obtain db via
// sqlx.NewDb(database.Open(driver, dsn), driver).
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, tenant_id, queue, job_type, payload, status, priority,
	attempts, max_attempts, last_error, available_at, reserved_at,
	completed_at, created_at`

// Push writes job with status=pending and returns its id. If job.ID is the
// zero value a fresh one is minted. If job.AvailableAt is zero it defaults
// to now.
func (s *Store) Push(ctx context.Context, job *Job) (ids.ID, error) {
	if job.ID.IsNil() {
		job.ID = ids.New()
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = time.Now().UTC()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	job.Status = StatusPending
	job.CreatedAt = time.Now().UTC()

	q := database.ConvertPlaceholders(`
		INSERT INTO jobs (id, tenant_id, queue, job_type, payload, status,
			priority, attempts, max_attempts, last_error, available_at,
			created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	var tenantArg any
	if job.HasTenant() {
		tenantArg = job.TenantID
	}
	_, err := s.db.ExecContext(ctx, q,
		job.ID, tenantArg, job.Queue, job.JobType, job.Payload, job.Status,
		job.Priority, job.Attempts, job.MaxAttempts, job.LastError,
		job.AvailableAt, job.CreatedAt)
	if err != nil {
		return ids.Nil, wrapErr("push", err)
	}
	return job.ID, nil
}

// Pop atomically claims the highest-priority, earliest-available pending
// job in queue whose available_at <= now, marks it reserved, and
// increments attempts. Returns nil, nil when the queue is empty.
func (s *Store) Pop(ctx context.Context, queue string) (*Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("pop: begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var jobID ids.ID

	selectQ := `
		SELECT id FROM jobs
		WHERE queue = ? AND status = ? AND available_at <= ?
		ORDER BY priority DESC, available_at ASC
		LIMIT 1
	`
	if !database.IsSQLite() {
		selectQ += " FOR UPDATE SKIP LOCKED"
	}
	selectQ = database.ConvertPlaceholders(selectQ)

	err = tx.GetContext(ctx, &jobID, selectQ, queue, StatusPending, now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("pop: select candidate", err)
	}

	updateQ := database.ConvertPlaceholders(`
		UPDATE jobs SET status = ?, reserved_at = ?, attempts = attempts + 1
		WHERE id = ?
	`)
	if _, err := tx.ExecContext(ctx, updateQ, StatusReserved, now, jobID); err != nil {
		return nil, wrapErr("pop: reserve", err)
	}

	var job Job
	getQ := database.ConvertPlaceholders(fmt.Sprintf("SELECT %s FROM jobs WHERE id = ?", jobColumns))
	if err := tx.GetContext(ctx, &job, getQ, jobID); err != nil {
		return nil, wrapErr("pop: reload", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("pop: commit", err)
	}
	return &job, nil
}

// Complete marks id completed and stamps completed_at.
func (s *Store) Complete(ctx context.Context, id ids.ID) error {
	q := database.ConvertPlaceholders(`
		UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?
	`)
	_, err := s.db.ExecContext(ctx, q, StatusCompleted, time.Now().UTC(), id)
	return wrapErr("complete", err)
}

// Fail marks id failed, records errMsg, and clears reserved_at. Per spec
// §4.4 the worker calls Fail unconditionally on handler error; a
// supervisor decides whether to Release based on Retryable().
func (s *Store) Fail(ctx context.Context, id ids.ID, errMsg string) error {
	q := database.ConvertPlaceholders(`
		UPDATE jobs SET status = ?, last_error = ?, reserved_at = NULL
		WHERE id = ?
	`)
	_, err := s.db.ExecContext(ctx, q, StatusFailed, errMsg, id)
	return wrapErr("fail", err)
}

// Release returns id to pending with available_at = now + delay, for
// explicit retry.
func (s *Store) Release(ctx context.Context, id ids.ID, delay time.Duration) error {
	q := database.ConvertPlaceholders(`
		UPDATE jobs SET status = ?, available_at = ?, reserved_at = NULL
		WHERE id = ?
	`)
	_, err := s.db.ExecContext(ctx, q, StatusPending, time.Now().UTC().Add(delay), id)
	return wrapErr("release", err)
}

// ReleaseStale resets reserved jobs whose reserved_at predates
// now-olderThan back to pending, recovering from crashed workers. Returns
// the count of rows reset.
func (s *Store) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	q := database.ConvertPlaceholders(`
		UPDATE jobs SET status = ?, reserved_at = NULL
		WHERE status = ? AND reserved_at < ?
	`)
	res, err := s.db.ExecContext(ctx, q, StatusPending, StatusReserved, cutoff)
	if err != nil {
		return 0, wrapErr("release_stale", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("release_stale: rows affected", err)
	}
	return n, nil
}

// Size counts pending jobs in queue that are currently ready (available_at
// <= now).
func (s *Store) Size(ctx context.Context, queue string) (int64, error) {
	q := database.ConvertPlaceholders(`
		SELECT COUNT(*) FROM jobs WHERE queue = ? AND status = ? AND available_at <= ?
	`)
	var n int64
	err := s.db.GetContext(ctx, &n, q, queue, StatusPending, time.Now().UTC())
	if err != nil {
		return 0, wrapErr("size", err)
	}
	return n, nil
}

// RetryFailed mass-resets failed jobs in queue with attempts < max_attempts
// back to pending. Returns the count of rows reset.
func (s *Store) RetryFailed(ctx context.Context, queue string) (int64, error) {
	q := database.ConvertPlaceholders(`
		UPDATE jobs SET status = ?, available_at = ?, reserved_at = NULL
		WHERE queue = ? AND status = ? AND attempts < max_attempts
	`)
	res, err := s.db.ExecContext(ctx, q, StatusPending, time.Now().UTC(), queue, StatusFailed)
	if err != nil {
		return 0, wrapErr("retry_failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("retry_failed: rows affected", err)
	}
	return n, nil
}
