package queue

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// WorkerOption configures a Worker at construction time.
type WorkerOption func(*Worker)

// WithLogger sets the structured logger used for poll/dispatch diagnostics.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithPollInterval sets the sleep-on-empty backoff between Pop attempts
// when a queue is empty. Default 500ms.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

// WithStaleSweep sets how often ReleaseStale runs and the reservation age
// threshold it applies. Defaults: every minute, 5-minute threshold.
func WithStaleSweep(interval, olderThan time.Duration) WorkerOption {
	return func(w *Worker) {
		w.staleSweepInterval = interval
		w.staleOlderThan = olderThan
	}
}

// WithRetryBackoff sets the base delay and ceiling used when a failed,
// retryable job is released. Defaults: 1s base, 5m ceiling.
func WithRetryBackoff(base, ceiling time.Duration) WorkerOption {
	return func(w *Worker) {
		w.retryBase = base
		w.retryCeiling = ceiling
	}
}

// Worker runs the conceptual loop from spec §4.4 against a single queue:
// periodic release_stale, pop with sleep-on-empty backoff, dispatch to a
// registered handler with a cancellable context (no per-job deadline),
// complete or fail
// (releasing retryable failures with exponential backoff).
type Worker struct {
	store    *Store
	queue    string
	handlers *HandlerRegistry
	logger   *slog.Logger

	pollInterval       time.Duration
	staleSweepInterval time.Duration
	staleOlderThan     time.Duration
	retryBase          time.Duration
	retryCeiling       time.Duration
}

// NewWorker constructs a Worker polling queue, dispatching to handlers.
func NewWorker(store *Store, queue string, handlers *HandlerRegistry, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:              store,
		queue:              queue,
		handlers:           handlers,
		logger:             slog.Default(),
		pollInterval:       500 * time.Millisecond,
		staleSweepInterval: time.Minute,
		staleOlderThan:     5 * time.Minute,
		retryBase:          time.Second,
		retryCeiling:       5 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled, processing jobs from the queue.
// Cancellation is cooperative: the current job (if any) is allowed to
// finish before Run returns, matching the shutdown coordinator's
// drain-before-stop contract.
func (w *Worker) Run(ctx context.Context) error {
	staleTicker := time.NewTicker(w.staleSweepInterval)
	defer staleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-staleTicker.C:
			n, err := w.store.ReleaseStale(ctx, w.staleOlderThan)
			if err != nil {
				w.logger.Warn("queue: release_stale failed", "queue", w.queue, "error", err)
			} else if n > 0 {
				w.logger.Info("queue: released stale reservations", "queue", w.queue, "count", n)
			}
		default:
		}

		job, err := w.store.Pop(ctx, w.queue)
		if err != nil {
			w.logger.Error("queue: pop failed", "queue", w.queue, "error", err)
			if !sleepOrDone(ctx, w.pollInterval) {
				return nil
			}
			continue
		}
		if job == nil {
			if !sleepOrDone(ctx, w.pollInterval) {
				return nil
			}
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	handler, ok := w.handlers.Lookup(job.JobType)
	if !ok {
		w.logger.Error("queue: no handler registered", "job_type", job.JobType, "job_id", job.ID.String())
		_ = w.store.Fail(ctx, job.ID, "no handler registered for job_type "+job.JobType)
		return
	}

	hctx := ctx
	var cancel context.CancelFunc
	hctx, cancel = context.WithCancel(ctx)
	defer cancel()

	err := handler(hctx, job)
	if err == nil {
		if cerr := w.store.Complete(ctx, job.ID); cerr != nil {
			w.logger.Error("queue: complete failed", "job_id", job.ID.String(), "error", cerr)
		}
		return
	}

	w.logger.Warn("queue: handler failed", "job_id", job.ID.String(), "job_type", job.JobType, "error", err)
	if ferr := w.store.Fail(ctx, job.ID, err.Error()); ferr != nil {
		w.logger.Error("queue: fail failed", "job_id", job.ID.String(), "error", ferr)
		return
	}

	if job.Retryable() {
		delay := Backoff(w.retryBase, job.Attempts, w.retryCeiling, rand.Float64)
		if rerr := w.store.Release(ctx, job.ID, delay); rerr != nil {
			w.logger.Error("queue: release failed", "job_id", job.ID.String(), "error", rerr)
		}
	}
}

// sleepOrDone sleeps d, returning false if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
