// Package session implements session storage and the policy manager on
// top of it: random token generation, SHA-256 token hashing, expiry/
// activity-extension rules, and per-user session count eviction.
package session

import (
	"encoding/json"
	"time"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// Session is one authenticated session. TokenHash is the only form of the
// token ever persisted; the plaintext is returned once at creation and
// never stored or logged.
type Session struct {
	ID           ids.ID    `db:"id"`
	UserID       ids.ID    `db:"user_id"`
	TokenHash    string    `db:"token_hash"`
	ClientIP     string    `db:"client_ip"`
	UserAgent    string    `db:"user_agent"`
	DataJSON     []byte    `db:"data"`
	LastActiveAt time.Time `db:"last_active_at"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
}

// Valid reports whether the session has not yet expired.
func (s *Session) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// Get decodes the session's data bag field key into dst.
func Get[T any](s *Session, key string, dst *T) (bool, error) {
	if len(s.DataJSON) == 0 {
		return false, nil
	}
	var bag map[string]json.RawMessage
	if err := json.Unmarshal(s.DataJSON, &bag); err != nil {
		return false, err
	}
	raw, ok := bag[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set encodes value into the session's data bag under key.
func Set[T any](s *Session, key string, value T) error {
	bag := map[string]json.RawMessage{}
	if len(s.DataJSON) > 0 {
		if err := json.Unmarshal(s.DataJSON, &bag); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	bag[key] = raw
	encoded, err := json.Marshal(bag)
	if err != nil {
		return err
	}
	s.DataJSON = encoded
	return nil
}
