// Package ids provides the time-ordered identifier used by every durable
// entity in the system (tenants, users, posts, jobs, sessions, plugins).
package ids

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is a time-ordered 128-bit identifier. Lexicographic sort order
// approximates creation order because it is backed by UUIDv7, which packs
// a 48-bit millisecond timestamp into the high bits.
type ID uuid.UUID

// Nil is the zero-value ID.
var Nil = ID(uuid.Nil)

// New mints a fresh time-ordered ID. Monotone within a single process for
// calls made in the same millisecond, per the underlying UUIDv7 generator.
func New() ID {
	u, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the entropy source errors; fall back to
		// a random v4 rather than propagating an error from an id minter.
		u = uuid.New()
	}
	return ID(u)
}

// Parse decodes a canonical string form into an ID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("ids: parse %q: %w", s, err)
	}
	return ID(u), nil
}

// MustParse is Parse but panics on error; for use with compile-time constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalJSON(data); err != nil {
		return err
	}
	*id = ID(u)
	return nil
}

// Value implements driver.Valuer so an ID can be written as a SQL parameter.
func (id ID) Value() (driver.Value, error) {
	return uuid.UUID(id).String(), nil
}

// Scan implements sql.Scanner so an ID can be read out of a database row.
func (id *ID) Scan(src any) error {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return fmt.Errorf("ids: scan: %w", err)
	}
	*id = ID(u)
	return nil
}
