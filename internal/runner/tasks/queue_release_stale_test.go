package tasks

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rustpress/rustpress-core/internal/queue"
)

func TestReleaseStaleTaskReleasesOldReservations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "mysql")
	store := queue.NewStore(sqlxDB)

	q := `
		UPDATE jobs SET status = ?, reserved_at = NULL
		WHERE status = ? AND reserved_at < ?
	`
	mock.ExpectExec(regexp.QuoteMeta(q)).
		WithArgs(queue.StatusPending, queue.StatusReserved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	task := NewReleaseStaleTask(store, "", time.Minute, nil)
	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
