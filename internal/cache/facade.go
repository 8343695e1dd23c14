package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Facade wraps a Backend with typed access, key namespacing, and tag-based
// group invalidation. Values are serialized with JSON, the spec's named
// reference format; deserialization failures surface as a cache error
// rather than a silent cache miss.
type Facade struct {
	backend Backend
	prefix  string // global namespace prefix, rewritten "<prefix>:<key>" on the wire
}

// NewFacade wraps backend with an optional global key prefix.
func NewFacade(backend Backend, prefix string) *Facade {
	return &Facade{backend: backend, prefix: prefix}
}

func (f *Facade) wire(key string) string {
	return withPrefix(f.prefix, key)
}

// Get decodes the value stored at key into dst. Returns found=false on a
// cache miss; a deserialization failure is returned as an error, not
// treated as a miss.
func Get[T any](ctx context.Context, f *Facade, key string, dst *T) (bool, error) {
	raw, ok, err := f.backend.Get(ctx, f.wire(key))
	if err != nil {
		return false, wrapErr("get "+key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, &Error{Message: "deserialize " + key, Cause: err}
	}
	return true, nil
}

// Set encodes value and stores it under key with the given ttl (0 = no
// expiry).
func Set[T any](ctx context.Context, f *Facade, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &Error{Message: "serialize " + key, Cause: err}
	}
	return f.backend.Set(ctx, f.wire(key), raw, ttl)
}

// Remember returns the cached value at key if present; otherwise it
// invokes producer, caches the result with ttl, and returns it.
// Single-flight is NOT guaranteed: concurrent callers may all invoke
// producer (see SPEC_FULL.md §9, Open Question 2 — a layered wrapper may
// add per-key locking on top of this facade).
func Remember[T any](ctx context.Context, f *Facade, key string, ttl time.Duration, producer func(ctx context.Context) (T, error)) (T, error) {
	var cur T
	found, err := Get(ctx, f, key, &cur)
	if err != nil {
		var zero T
		return zero, err
	}
	if found {
		return cur, nil
	}
	val, err := producer(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := Set(ctx, f, key, val, ttl); err != nil {
		var zero T
		return zero, err
	}
	return val, nil
}

// RememberForever is Remember with no expiry.
func RememberForever[T any](ctx context.Context, f *Facade, key string, producer func(ctx context.Context) (T, error)) (T, error) {
	return Remember(ctx, f, key, 0, producer)
}

// Forget removes a single key.
func (f *Facade) Forget(ctx context.Context, key string) error {
	_, err := f.backend.Delete(ctx, f.wire(key))
	return wrapErr("forget "+key, err)
}

// ClearByPrefix removes every key under the given prefix.
func (f *Facade) ClearByPrefix(ctx context.Context, prefix string) error {
	_, err := f.backend.DeletePattern(ctx, withPrefix(f.prefix, prefix+"*"))
	return wrapErr("clear prefix "+prefix, err)
}

// SetWithTags stores value under key and records a marker key for each
// tag so InvalidateTags can later find it. The primary value is written
// before the tag markers (best-effort ordering, see SPEC_FULL.md §9 Open
// Question 3): a crash between the two leaves only an unreferenced
// primary key, which self-heals on TTL expiry, never an orphaned marker.
func SetWithTags[T any](ctx context.Context, f *Facade, key string, value T, ttl time.Duration, tags []string) error {
	if err := Set(ctx, f, key, value, ttl); err != nil {
		return err
	}
	for _, tag := range tags {
		marker := tagMarkerKey(f.prefix, tag, key)
		if err := f.backend.Set(ctx, marker, []byte(key), ttl); err != nil {
			return wrapErr("tag marker "+marker, err)
		}
	}
	return nil
}

// InvalidateTags deletes every value referenced by a marker under each
// given tag, then the markers themselves. Not atomic across multiple
// tags; ordering is unspecified but monotonic — no value reappears after
// this call returns.
func (f *Facade) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		pattern := tagPattern(f.prefix, tag)
		markerPrefix := pattern[:len(pattern)-1] // strip trailing '*'
		markers, err := f.backend.ListKeys(ctx, markerPrefix)
		if err != nil {
			return wrapErr("list tag markers "+tag, err)
		}
		for _, marker := range markers {
			// The tag is known here, so the primary key is everything after
			// "tag:<tag>:" even when the tag itself contains ':'.
			primary := strings.TrimPrefix(marker, markerPrefix)
			if _, err := f.backend.Delete(ctx, f.wire(primary)); err != nil {
				return wrapErr("invalidate "+primary, err)
			}
		}
		if _, err := f.backend.DeletePattern(ctx, pattern); err != nil {
			return wrapErr("delete markers "+tag, err)
		}
	}
	return nil
}

// Backend exposes the underlying backend for health checks and admin tooling.
func (f *Facade) Backend() Backend { return f.backend }

// ReconcileTagIndex scans every tag marker under prefix "tag:" and deletes
// markers whose primary key no longer exists. This repairs the orphaned
// markers left behind when a primary key is removed by Forget (or expires)
// rather than by InvalidateTags (see SPEC_FULL.md §9, Open Question 3).
// The primary key is read from the marker's stored value, which
// SetWithTags sets to the unprefixed key. Returns the count of markers
// removed.
func (f *Facade) ReconcileTagIndex(ctx context.Context) (int, error) {
	markers, err := f.backend.ListKeys(ctx, withPrefix(f.prefix, "tag:"))
	if err != nil {
		return 0, wrapErr("reconcile: list markers", err)
	}

	removed := 0
	for _, marker := range markers {
		raw, ok, err := f.backend.Get(ctx, marker)
		if err != nil {
			return removed, wrapErr("reconcile: read marker "+marker, err)
		}
		if !ok {
			continue
		}
		primary := string(raw)
		exists, err := f.backend.Exists(ctx, f.wire(primary))
		if err != nil {
			return removed, wrapErr("reconcile: exists "+primary, err)
		}
		if exists {
			continue
		}
		if _, err := f.backend.Delete(ctx, marker); err != nil {
			return removed, wrapErr("reconcile: delete marker "+marker, err)
		}
		removed++
	}
	return removed, nil
}
