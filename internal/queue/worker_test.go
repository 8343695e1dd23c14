package queue

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustpress/rustpress-core/internal/ids"
)

func TestHandlerRegistryRegisterAndLookup(t *testing.T) {
	reg := NewHandlerRegistry()
	_, ok := reg.Lookup("send_email")
	assert.False(t, ok)

	reg.Register("send_email", func(ctx context.Context, job *Job) error { return nil })
	h, ok := reg.Lookup("send_email")
	require.True(t, ok)
	require.NotNil(t, h)
}

func TestWorkerProcessCompletesOnHandlerSuccess(t *testing.T) {
	store, mock, closeDB := newTestStore(t)
	defer closeDB()

	id := ids.New()
	job := &Job{ID: id, JobType: "send_email", Attempts: 1, MaxAttempts: 3}

	q := `UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`
	mock.ExpectExec(regexp.QuoteMeta(q)).
		WithArgs(StatusCompleted, sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reg := NewHandlerRegistry()
	reg.Register("send_email", func(ctx context.Context, job *Job) error { return nil })

	w := NewWorker(store, "default", reg)
	w.process(context.Background(), job)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerProcessReleasesRetryableFailure(t *testing.T) {
	store, mock, closeDB := newTestStore(t)
	defer closeDB()

	id := ids.New()
	job := &Job{ID: id, JobType: "send_email", Attempts: 1, MaxAttempts: 3}

	failQ := `UPDATE jobs SET status = ?, last_error = ?, reserved_at = NULL WHERE id = ?`
	mock.ExpectExec(regexp.QuoteMeta(failQ)).
		WithArgs(StatusFailed, "boom", id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	releaseQ := `UPDATE jobs SET status = ?, available_at = ?, reserved_at = NULL WHERE id = ?`
	mock.ExpectExec(regexp.QuoteMeta(releaseQ)).
		WithArgs(StatusPending, sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reg := NewHandlerRegistry()
	reg.Register("send_email", func(ctx context.Context, job *Job) error { return errors.New("boom") })

	w := NewWorker(store, "default", reg)
	w.process(context.Background(), job)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerProcessFailsWithNoHandlerRegistered(t *testing.T) {
	store, mock, closeDB := newTestStore(t)
	defer closeDB()

	id := ids.New()
	job := &Job{ID: id, JobType: "unknown_type", Attempts: 0, MaxAttempts: 3}

	q := `UPDATE jobs SET status = ?, last_error = ?, reserved_at = NULL WHERE id = ?`
	mock.ExpectExec(regexp.QuoteMeta(q)).
		WithArgs(StatusFailed, "no handler registered for job_type unknown_type", id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewWorker(store, "default", NewHandlerRegistry())
	w.process(context.Background(), job)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	store, _, closeDB := newTestStore(t)
	defer closeDB()

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(store, "default", NewHandlerRegistry(), WithPollInterval(0))
	cancel()

	err := w.Run(ctx)
	assert.NoError(t, err)
}
