package cache

import (
	"container/list"
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// entry is one slot in the in-memory backend.
type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
	elem      *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend is an LRU-bounded in-memory Backend with per-entry
// expiry, guarded by a single coarse mutex. Pattern scans iterate the
// whole key set, matching the spec's "implementations may degrade to a
// full scan" allowance.
type MemoryBackend struct {
	mu       sync.Mutex
	data     map[string]*entry
	order    *list.List // front = most recently used
	maxItems int

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// NewMemoryBackend creates an in-memory backend bounded to maxItems
// entries (0 means unbounded) with a background sweep of expired keys
// every cleanupInterval (0 disables the sweep).
func NewMemoryBackend(maxItems int, cleanupInterval time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		data:        make(map[string]*entry),
		order:       list.New(),
		maxItems:    maxItems,
		stopCleanup: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go b.cleanupLoop(cleanupInterval)
	}
	return b
}

// Close stops the background cleanup goroutine, if any.
func (b *MemoryBackend) Close() {
	b.cleanupOnce.Do(func() { close(b.stopCleanup) })
}

func (b *MemoryBackend) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweepExpired()
		case <-b.stopCleanup:
			return
		}
	}
}

func (b *MemoryBackend) sweepExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for k, e := range b.data {
		if e.expired(now) {
			b.removeLocked(k)
		}
	}
}

// removeLocked deletes key from both the map and the LRU list. Caller
// must hold b.mu.
func (b *MemoryBackend) removeLocked(key string) {
	if e, ok := b.data[key]; ok {
		b.order.Remove(e.elem)
		delete(b.data, key)
	}
}

func (b *MemoryBackend) touchLocked(e *entry) {
	b.order.MoveToFront(e.elem)
}

func (b *MemoryBackend) evictIfFullLocked() {
	if b.maxItems <= 0 {
		return
	}
	for len(b.data) > b.maxItems {
		oldest := b.order.Back()
		if oldest == nil {
			return
		}
		b.removeLocked(oldest.Value.(string))
	}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		b.removeLocked(key)
		return nil, false, nil
	}
	b.touchLocked(e)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(key, value, ttl)
	return nil
}

func (b *MemoryBackend) setLocked(key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	if e, ok := b.data[key]; ok {
		e.value = stored
		e.expiresAt = expiresAt
		b.touchLocked(e)
		return
	}

	e := &entry{key: key, value: stored, expiresAt: expiresAt}
	e.elem = b.order.PushFront(key)
	b.data[key] = e
	b.evictIfFullLocked()
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	if ok {
		b.removeLocked(key)
	}
	return ok, nil
}

func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok {
		return false, nil
	}
	if e.expired(time.Now()) {
		b.removeLocked(key)
		return false, nil
	}
	return true, nil
}

func (b *MemoryBackend) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	if e.expired(time.Now()) {
		b.removeLocked(key)
		return 0, false, nil
	}
	if e.expiresAt.IsZero() {
		return 0, true, nil
	}
	return time.Until(e.expiresAt), true, nil
}

func (b *MemoryBackend) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return b.addCounter(key, delta)
}

func (b *MemoryBackend) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return b.addCounter(key, -delta)
}

func (b *MemoryBackend) addCounter(key string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var cur int64
	if e, ok := b.data[key]; ok && !e.expired(time.Now()) {
		cur = decodeInt64(e.value)
	}
	cur += delta
	b.setLocked(key, encodeInt64(cur), 0)
	return cur, nil
}

func (b *MemoryBackend) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if matchGlob(pattern, k) {
			b.removeLocked(k)
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	now := time.Now()
	for _, k := range keys {
		e, ok := b.data[k]
		if !ok {
			continue
		}
		if e.expired(now) {
			b.removeLocked(k)
			continue
		}
		v := make([]byte, len(e.value))
		copy(v, e.value)
		out[k] = v
	}
	return out, nil
}

func (b *MemoryBackend) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range entries {
		b.setLocked(k, v, ttl)
	}
	return nil
}

func (b *MemoryBackend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range b.data {
		if e.expired(now) {
			continue
		}
		if prefix == "" || matchGlob(prefix+"*", k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *MemoryBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string]*entry)
	b.order.Init()
	return nil
}

func (b *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// matchGlob implements the shell-style globs required by the spec
// (prefix:*, tag:x:*) using path.Match, which supports '*' and '?'.
func matchGlob(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}

func encodeInt64(v int64) []byte {
	return strconv.AppendInt(nil, v, 10)
}

func decodeInt64(b []byte) int64 {
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}
