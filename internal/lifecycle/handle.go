package lifecycle

import (
	"context"
	"sync/atomic"
	"time"
)

// ShutdownHandle tracks in-flight tasks so a coordinator phase can wait
// for outstanding work to drain before proceeding.
type ShutdownHandle struct {
	count int64
}

// NewShutdownHandle returns an empty handle.
func NewShutdownHandle() *ShutdownHandle {
	return &ShutdownHandle{}
}

// TaskGuard decrements the handle's counter when released.
type TaskGuard struct {
	handle *ShutdownHandle
	done   int32
}

// RegisterTask increments the in-flight counter and returns a guard; the
// caller must call Release (typically via defer) when the task finishes.
func (h *ShutdownHandle) RegisterTask() *TaskGuard {
	atomic.AddInt64(&h.count, 1)
	return &TaskGuard{handle: h}
}

// Release decrements the in-flight counter. Safe to call more than once;
// only the first call has an effect.
func (g *TaskGuard) Release() {
	if atomic.CompareAndSwapInt32(&g.done, 0, 1) {
		atomic.AddInt64(&g.handle.count, -1)
	}
}

// Count returns the current number of in-flight tasks.
func (h *ShutdownHandle) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

// WaitForTasks polls until the in-flight count reaches zero or timeout
// elapses. Returns true if the count reached zero.
func (h *ShutdownHandle) WaitForTasks(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&h.count) <= 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
