package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rustpress/rustpress-core/internal/database"
	"github.com/rustpress/rustpress-core/internal/ids"
)

// Error wraps store failures so callers can distinguish session errors
// from other subsystem errors.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("session: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func wrapErr(message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Message: message, Cause: cause}
}

const sessionColumns = `id, user_id, token_hash, client_ip, user_agent, data,
	last_active_at, expires_at, created_at`

// Store persists sessions in a SQL table.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an existing connection.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create inserts s. If s.ID is the zero value a fresh one is minted.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess.ID.IsNil() {
		sess.ID = ids.New()
	}
	sess.CreatedAt = time.Now().UTC()
	if sess.LastActiveAt.IsZero() {
		sess.LastActiveAt = sess.CreatedAt
	}

	q := database.ConvertPlaceholders(`
		INSERT INTO sessions (id, user_id, token_hash, client_ip, user_agent,
			data, last_active_at, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, q,
		sess.ID, sess.UserID, sess.TokenHash, sess.ClientIP, sess.UserAgent,
		sess.DataJSON, sess.LastActiveAt, sess.ExpiresAt, sess.CreatedAt)
	return wrapErr("create", err)
}

// GetByTokenHash looks up a session by its hashed token. Returns nil, nil
// if no row matches.
func (s *Store) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	q := database.ConvertPlaceholders(fmt.Sprintf("SELECT %s FROM sessions WHERE token_hash = ?", sessionColumns))
	var sess Session
	err := s.db.GetContext(ctx, &sess, q, tokenHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get by token hash", err)
	}
	return &sess, nil
}

// CountByUser returns how many sessions user currently has.
func (s *Store) CountByUser(ctx context.Context, userID ids.ID) (int, error) {
	q := database.ConvertPlaceholders("SELECT COUNT(*) FROM sessions WHERE user_id = ?")
	var n int
	err := s.db.GetContext(ctx, &n, q, userID)
	if err != nil {
		return 0, wrapErr("count by user", err)
	}
	return n, nil
}

// OldestByUser returns the id of user's least-recently-active session, or
// ids.Nil if the user has none.
func (s *Store) OldestByUser(ctx context.Context, userID ids.ID) (ids.ID, error) {
	q := database.ConvertPlaceholders(`
		SELECT id FROM sessions WHERE user_id = ? ORDER BY last_active_at ASC LIMIT 1
	`)
	var id ids.ID
	err := s.db.GetContext(ctx, &id, q, userID)
	if err == sql.ErrNoRows {
		return ids.Nil, nil
	}
	if err != nil {
		return ids.Nil, wrapErr("oldest by user", err)
	}
	return id, nil
}

// Delete removes a session by id.
func (s *Store) Delete(ctx context.Context, id ids.ID) error {
	q := database.ConvertPlaceholders("DELETE FROM sessions WHERE id = ?")
	_, err := s.db.ExecContext(ctx, q, id)
	return wrapErr("delete", err)
}

// DeleteByUser removes every session belonging to userID.
func (s *Store) DeleteByUser(ctx context.Context, userID ids.ID) (int64, error) {
	q := database.ConvertPlaceholders("DELETE FROM sessions WHERE user_id = ?")
	res, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, wrapErr("delete by user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete by user: rows affected", err)
	}
	return n, nil
}

// UpdateActivity touches a session's last_active_at without affecting
// its expiry.
func (s *Store) UpdateActivity(ctx context.Context, id ids.ID, at time.Time) error {
	q := database.ConvertPlaceholders("UPDATE sessions SET last_active_at = ? WHERE id = ?")
	_, err := s.db.ExecContext(ctx, q, at, id)
	return wrapErr("update activity", err)
}

// Extend sets a session's expires_at and last_active_at together, used
// when the activity window has been exceeded and extend_on_activity
// applies.
func (s *Store) Extend(ctx context.Context, id ids.ID, expiresAt, lastActiveAt time.Time) error {
	q := database.ConvertPlaceholders(`
		UPDATE sessions SET expires_at = ?, last_active_at = ? WHERE id = ?
	`)
	_, err := s.db.ExecContext(ctx, q, expiresAt, lastActiveAt, id)
	return wrapErr("extend", err)
}

// DeleteExpired removes every session whose expires_at is before now.
// Returns the count removed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	q := database.ConvertPlaceholders("DELETE FROM sessions WHERE expires_at < ?")
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, wrapErr("delete expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete expired: rows affected", err)
	}
	return n, nil
}
