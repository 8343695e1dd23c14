package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Handler is invoked for each matching event.
type Handler func(ctx context.Context, e Event) error

// Subscription describes one registered subscriber.
type Subscription struct {
	ID            int64
	EventTypes    map[string]struct{}
	Priority      int // higher runs first
	MaxRetries    int
	RetryDelay    time.Duration
	Async         bool
	ContinueOnErr bool
	Handler       Handler

	registrationIndex int
}

func (s *Subscription) matches(eventType string) bool {
	_, ok := s.EventTypes[eventType]
	return ok
}

// Bus is a single-process publish/subscribe channel.
type Bus struct {
	mu            sync.RWMutex
	subs          map[int64]*Subscription
	nextID        int64
	nextRegIndex  int
	logger        *slog.Logger
	asyncQueue    chan asyncDispatch
	asyncWG       sync.WaitGroup
	stopAsync     chan struct{}
	broadcast     chan Event // bounded, for out-of-process/stream listeners
	historyMu     sync.Mutex
	historyBuf    []Event
	historyCap    int
	historyOn     bool
}

type asyncDispatch struct {
	sub *Subscription
	evt Event
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithLogger sets the structured logger used for subscriber errors.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithBroadcastCapacity sets the bounded broadcast channel's buffer size.
// Slow external consumers of the broadcast receiver miss events; this is
// documented loss, not an error.
func WithBroadcastCapacity(n int) Option {
	return func(b *Bus) { b.broadcast = make(chan Event, n) }
}

// WithHistory enables a capped ring buffer of published events, queryable
// by event type. Disabled by default.
func WithHistory(capacity int) Option {
	return func(b *Bus) {
		b.historyOn = true
		b.historyCap = capacity
	}
}

// New creates a Bus and starts its async dispatch worker.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[int64]*Subscription),
		logger:    slog.Default(),
		broadcast: make(chan Event, 256),
		stopAsync: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.asyncQueue = make(chan asyncDispatch, 1024)
	b.asyncWG.Add(1)
	go b.asyncWorker()
	return b
}

// Close stops the async dispatch worker. Queued async dispatches are
// allowed to drain first.
func (b *Bus) Close() {
	close(b.asyncQueue)
	b.asyncWG.Wait()
}

func (b *Bus) asyncWorker() {
	defer b.asyncWG.Done()
	for d := range b.asyncQueue {
		b.invokeWithRetry(context.Background(), d.sub, d.evt)
	}
}

// SubscribeOption configures a Subscription at registration time.
type SubscribeOption func(*Subscription)

// ContinueOnError keeps dispatching remaining sync subscribers even after
// this one exhausts its retries. Default is to abort remaining dispatch.
func ContinueOnError() SubscribeOption {
	return func(s *Subscription) { s.ContinueOnErr = true }
}

// Subscribe registers a handler for the given event types.
func (b *Bus) Subscribe(eventTypes []string, priority int, async bool, maxRetries int, retryDelay time.Duration, handler Handler, opts ...SubscribeOption) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.nextRegIndex++
	types := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}
	sub := &Subscription{
		ID:                b.nextID,
		EventTypes:        types,
		Priority:          priority,
		MaxRetries:        maxRetries,
		RetryDelay:        retryDelay,
		Async:             async,
		Handler:           handler,
		registrationIndex: b.nextRegIndex,
	}
	for _, opt := range opts {
		opt(sub)
	}
	b.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription by id.
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish dispatches e to every matching subscriber: sync subscribers run
// on the caller's goroutine in priority-descending order before Publish
// returns; async subscribers are handed to the background worker and run
// in the order they were enqueued. The event is also sent on the bounded
// broadcast channel for out-of-process listeners.
func (b *Bus) Publish(ctx context.Context, e Event) {
	matched := b.matchingSubs(e.Type)

	var sync, async []*Subscription
	for _, s := range matched {
		if s.Async {
			async = append(async, s)
		} else {
			sync = append(sync, s)
		}
	}
	byPriorityThenRegistration := func(s []*Subscription) func(i, j int) bool {
		return func(i, j int) bool {
			if s[i].Priority != s[j].Priority {
				return s[i].Priority > s[j].Priority
			}
			return s[i].registrationIndex < s[j].registrationIndex
		}
	}
	sort.Slice(sync, byPriorityThenRegistration(sync))
	sort.Slice(async, byPriorityThenRegistration(async))

	for _, s := range sync {
		if err := b.invokeWithRetry(ctx, s, e); err != nil && !s.ContinueOnErr {
			break
		}
	}

	for _, s := range async {
		select {
		case b.asyncQueue <- asyncDispatch{sub: s, evt: e}:
		default:
			b.logger.Warn("events: async queue full, dropping dispatch", "event_type", e.Type, "subscription_id", s.ID)
		}
	}

	select {
	case b.broadcast <- e:
	default:
		b.logger.Warn("events: broadcast channel full, event dropped for external listeners", "event_type", e.Type)
	}

	if b.historyOn {
		b.appendHistory(e)
	}
}

func (b *Bus) matchingSubs(eventType string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Subscription
	for _, s := range b.subs {
		if s.matches(eventType) {
			out = append(out, s)
		}
	}
	return out
}

// invokeWithRetry runs handler, retrying up to MaxRetries times with
// linear backoff retryDelay*attempt on failure.
func (b *Bus) invokeWithRetry(ctx context.Context, s *Subscription, e Event) error {
	var err error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.RetryDelay * time.Duration(attempt))
		}
		err = s.Handler(ctx, e)
		if err == nil {
			return nil
		}
		b.logger.Error("events: subscriber failed", "event_type", e.Type, "subscription_id", s.ID, "attempt", attempt+1, "error", err)
	}
	return err
}

// Broadcast returns the out-of-process broadcast channel.
func (b *Bus) Broadcast() <-chan Event {
	return b.broadcast
}

func (b *Bus) appendHistory(e Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.historyBuf = append(b.historyBuf, e)
	if len(b.historyBuf) > b.historyCap {
		b.historyBuf = b.historyBuf[len(b.historyBuf)-b.historyCap:]
	}
}

// History returns every recorded event of the given type, in publish
// order. Empty if history is disabled.
func (b *Bus) History(eventType string) []Event {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	var out []Event
	for _, e := range b.historyBuf {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
