package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// Kind classifies a validation failure.
type Kind int

const (
	KindAuthentication Kind = iota
	KindTokenExpired
)

// ValidationError carries a Kind alongside the failure reason.
type ValidationError struct {
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: %s", e.Reason)
}

// Policy configures a Manager's session lifetime rules.
type Policy struct {
	Lifetime           time.Duration // default validity period from creation
	MaxSessionsPerUser int           // 0 disables the cap
	ExtensionThreshold time.Duration // activity staleness that triggers extension
	ExtendOnActivity   bool
}

// DefaultPolicy mirrors common web-session defaults: 24h lifetime, 5
// sessions per user, extend when activity is stale by more than 15m.
func DefaultPolicy() Policy {
	return Policy{
		Lifetime:           24 * time.Hour,
		MaxSessionsPerUser: 5,
		ExtensionThreshold: 15 * time.Minute,
		ExtendOnActivity:   true,
	}
}

// Manager wraps a Store with the policy rules from spec §4.10.
type Manager struct {
	store  *Store
	policy Policy
	now    func() time.Time
}

// NewManager constructs a Manager. now defaults to time.Now if nil,
// overridable for deterministic tests.
func NewManager(store *Store, policy Policy, now func() time.Time) *Manager {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{store: store, policy: policy, now: now}
}

// HashToken returns the SHA-256 hex digest stored in place of a plaintext
// session token (spec §9 Open Question 1).
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create mints a random 32-byte session token, persists its hash, enforces
// MaxSessionsPerUser by evicting the oldest overflow, and returns the new
// session alongside the plaintext token (never persisted or logged).
func (m *Manager) Create(ctx context.Context, userID ids.ID, clientIP, userAgent string) (*Session, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("session: generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	now := m.now()
	sess := &Session{
		UserID:       userID,
		TokenHash:    HashToken(token),
		ClientIP:     clientIP,
		UserAgent:    userAgent,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.policy.Lifetime),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, "", err
	}

	if m.policy.MaxSessionsPerUser > 0 {
		count, err := m.store.CountByUser(ctx, userID)
		if err != nil {
			return nil, "", err
		}
		for count > m.policy.MaxSessionsPerUser {
			oldest, err := m.store.OldestByUser(ctx, userID)
			if err != nil {
				return nil, "", err
			}
			if oldest.IsNil() {
				break
			}
			if err := m.store.Delete(ctx, oldest); err != nil {
				return nil, "", err
			}
			count--
		}
	}

	return sess, token, nil
}

// Validate hashes token, looks it up, and applies the activity/expiry
// rules: expired sessions are deleted and rejected; sessions whose
// activity is beyond ExtensionThreshold are either extended (if
// ExtendOnActivity) or simply stamped with a fresh last_active_at.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	hash := HashToken(token)
	sess, err := m.store.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &ValidationError{Kind: KindAuthentication, Reason: "session not found"}
	}

	now := m.now()
	if !sess.Valid(now) {
		_ = m.store.Delete(ctx, sess.ID)
		return nil, &ValidationError{Kind: KindTokenExpired, Reason: "session expired"}
	}

	if now.Sub(sess.LastActiveAt) >= m.policy.ExtensionThreshold {
		if m.policy.ExtendOnActivity {
			sess.ExpiresAt = now.Add(m.policy.Lifetime)
			sess.LastActiveAt = now
			if err := m.store.Extend(ctx, sess.ID, sess.ExpiresAt, sess.LastActiveAt); err != nil {
				return nil, err
			}
		} else {
			sess.LastActiveAt = now
			if err := m.store.UpdateActivity(ctx, sess.ID, now); err != nil {
				return nil, err
			}
		}
	}

	return sess, nil
}

// Invalidate deletes the session identified by token.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	sess, err := m.store.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	return m.store.Delete(ctx, sess.ID)
}

// InvalidateUserSessions deletes every session belonging to userID.
// Returns the count removed.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID ids.ID) (int64, error) {
	return m.store.DeleteByUser(ctx, userID)
}

// CleanupExpired deletes every session whose expires_at has passed.
// Returns the count removed.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// IsAuthenticationError reports whether err is a "no such session"
// ValidationError (as opposed to TokenExpired).
func IsAuthenticationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == KindAuthentication
}

// IsTokenExpired reports whether err is an expired-session ValidationError.
func IsTokenExpired(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == KindTokenExpired
}
