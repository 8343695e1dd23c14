package tasks

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rustpress/rustpress-core/internal/session"
)

func TestSessionCleanupTaskDeletesExpiredSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "mysql")
	store := session.NewStore(sqlxDB)
	manager := session.NewManager(store, session.DefaultPolicy(), nil)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE expires_at < ?`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))

	task := NewSessionCleanupTask(manager, "", nil)
	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
