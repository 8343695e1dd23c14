// Package cache implements the tag-invalidatable page/object cache
// hierarchy: a pluggable Backend trait and a Facade providing typed
// access, key namespacing, and tag-based group invalidation.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Error wraps backend failures so callers can distinguish cache errors
// from other subsystem errors without depending on a concrete backend type.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cache: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("cache: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func wrapErr(message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Message: message, Cause: cause}
}

// Backend is the small trait surface every cache implementation provides.
// Pattern arguments use shell-style globs ("prefix:*", "tag:x:*");
// implementations that cannot index patterns natively may degrade to a
// full scan. set with ttl == 0 means "no expiry". Counters created by
// Increment/Decrement share the blob key namespace.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Decrement(ctx context.Context, key string, delta int64) (int64, error)
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Clear(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}
