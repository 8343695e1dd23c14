// Package tasks provides the concrete runner.Task implementations: the
// sweepers each core subsystem needs to reconcile state that only decays
// with the passage of time (expired sessions, stale job reservations,
// expired cache entries).
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/rustpress/rustpress-core/internal/session"
)

const defaultSessionCleanupSchedule = "0 */5 * * * *" // every 5 minutes

// SessionCleanupTask deletes expired sessions via the session manager.
type SessionCleanupTask struct {
	manager  *session.Manager
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSessionCleanupTask constructs the task. schedule defaults to every
// five minutes if empty.
func NewSessionCleanupTask(manager *session.Manager, schedule string, logger *slog.Logger) *SessionCleanupTask {
	if schedule == "" {
		schedule = defaultSessionCleanupSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCleanupTask{manager: manager, schedule: schedule, timeout: 2 * time.Minute, logger: logger}
}

func (t *SessionCleanupTask) Name() string          { return "session-cleanup" }
func (t *SessionCleanupTask) Schedule() string       { return t.schedule }
func (t *SessionCleanupTask) Timeout() time.Duration { return t.timeout }

// Run removes every session whose expires_at has passed.
func (t *SessionCleanupTask) Run(ctx context.Context) error {
	n, err := t.manager.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		t.logger.Info("session cleanup removed expired sessions", "count", n)
	}
	return nil
}
