package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/rustpress/rustpress-core/internal/cache"
)

const defaultCacheReconcileSchedule = "0 0 * * * *" // hourly

// CacheReconcileTask sweeps the tag index for orphaned markers left
// behind by keys removed outside of InvalidateTags.
type CacheReconcileTask struct {
	facade   *cache.Facade
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCacheReconcileTask constructs the task. schedule defaults to hourly
// if empty.
func NewCacheReconcileTask(facade *cache.Facade, schedule string, logger *slog.Logger) *CacheReconcileTask {
	if schedule == "" {
		schedule = defaultCacheReconcileSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheReconcileTask{facade: facade, schedule: schedule, timeout: 5 * time.Minute, logger: logger}
}

func (t *CacheReconcileTask) Name() string          { return "cache-reconcile" }
func (t *CacheReconcileTask) Schedule() string       { return t.schedule }
func (t *CacheReconcileTask) Timeout() time.Duration { return t.timeout }

// Run removes every tag marker whose primary key no longer exists.
func (t *CacheReconcileTask) Run(ctx context.Context) error {
	n, err := t.facade.ReconcileTagIndex(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		t.logger.Info("cache reconciliation removed orphaned tag markers", "count", n)
	}
	return nil
}
