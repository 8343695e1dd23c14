package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/rustpress/rustpress-core/internal/queue"
)

const (
	defaultReleaseStaleSchedule = "0 * * * * *" // every minute
	defaultStaleOlderThan       = 5 * time.Minute
)

// ReleaseStaleTask releases job reservations abandoned by a worker that
// died mid-processing, so another worker can retry them.
type ReleaseStaleTask struct {
	store     *queue.Store
	schedule  string
	olderThan time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewReleaseStaleTask constructs the task. schedule defaults to every
// minute, olderThan to five minutes, if zero-valued.
func NewReleaseStaleTask(store *queue.Store, schedule string, olderThan time.Duration, logger *slog.Logger) *ReleaseStaleTask {
	if schedule == "" {
		schedule = defaultReleaseStaleSchedule
	}
	if olderThan == 0 {
		olderThan = defaultStaleOlderThan
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReleaseStaleTask{store: store, schedule: schedule, olderThan: olderThan, timeout: time.Minute, logger: logger}
}

func (t *ReleaseStaleTask) Name() string          { return "queue-release-stale" }
func (t *ReleaseStaleTask) Schedule() string       { return t.schedule }
func (t *ReleaseStaleTask) Timeout() time.Duration { return t.timeout }

// Run releases every reserved job whose reservation predates olderThan.
func (t *ReleaseStaleTask) Run(ctx context.Context) error {
	n, err := t.store.ReleaseStale(ctx, t.olderThan)
	if err != nil {
		return err
	}
	if n > 0 {
		t.logger.Info("released stale job reservations", "count", n)
	}
	return nil
}
