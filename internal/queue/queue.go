package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// Payload is implemented by job payload types. JobType names the handler
// that processes it; Queue names the target queue; DefaultMaxAttempts
// seeds the job's max_attempts. DefaultTimeout is not stored on the job
// record and is not applied by the worker.
type Payload interface {
	JobType() string
	Queue() string
	DefaultMaxAttempts() int
	DefaultTimeout() time.Duration
}

// Queue is the typed dispatch front-end over a Store.
type Queue struct {
	store *Store
}

// New wraps store for typed dispatch.
func New(store *Store) *Queue {
	return &Queue{store: store}
}

// Dispatch constructs a job from payload's declared job_type/queue/
// max_attempts, attaches tenantID (ids.Nil for a global job), and pushes
// it immediately available.
func Dispatch[P Payload](ctx context.Context, q *Queue, tenantID ids.ID, payload P) (ids.ID, error) {
	return dispatchAt(ctx, q, tenantID, payload, time.Now().UTC())
}

// DispatchDelayed is Dispatch with available_at set to now+delay.
func DispatchDelayed[P Payload](ctx context.Context, q *Queue, tenantID ids.ID, payload P, delay time.Duration) (ids.ID, error) {
	return dispatchAt(ctx, q, tenantID, payload, time.Now().UTC().Add(delay))
}

// DispatchAt is Dispatch with an explicit available_at instant.
func DispatchAt[P Payload](ctx context.Context, q *Queue, tenantID ids.ID, payload P, at time.Time) (ids.ID, error) {
	return dispatchAt(ctx, q, tenantID, payload, at)
}

func dispatchAt[P Payload](ctx context.Context, q *Queue, tenantID ids.ID, payload P, availableAt time.Time) (ids.ID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ids.Nil, wrapErr("dispatch: marshal payload", err)
	}
	job := &Job{
		TenantID:    tenantID,
		Queue:       payload.Queue(),
		JobType:     payload.JobType(),
		Payload:     raw,
		MaxAttempts: payload.DefaultMaxAttempts(),
		AvailableAt: availableAt,
	}
	return q.store.Push(ctx, job)
}

// Handler processes one job's payload. The context is the worker's
// cancellable context; it carries no per-job deadline.
type Handler func(ctx context.Context, job *Job) error

// HandlerRegistry maps job_type to the Handler that processes it.
type HandlerRegistry struct {
	handlers map[string]Handler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register associates jobType with handler. A later call for the same
// jobType replaces the earlier one.
func (r *HandlerRegistry) Register(jobType string, handler Handler) {
	r.handlers[jobType] = handler
}

// Lookup returns the handler for jobType, or false if none is registered.
func (r *HandlerRegistry) Lookup(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
