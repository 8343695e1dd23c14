// Package hooks implements the plugin extension points: an action registry
// (fire-and-forget side effects) and a filter registry (value transforms),
// both ordered by (priority ascending, registration-index ascending) and
// revocable per owning plugin.
package hooks

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// ActionFunc is a fire-and-forget callback invoked by DoAction.
type ActionFunc func(ctx context.Context, args map[string]any) error

// FilterFunc transforms value and returns the transformed result. Stored
// untyped so a single registry can host filters over different value
// types; ApplyFilters type-asserts at the call boundary.
type FilterFunc func(ctx context.Context, value any, args map[string]any) (any, error)

type entry struct {
	ownerID           string
	priority          int
	registrationIndex int
	action            ActionFunc
	filter            FilterFunc
}

// Registry holds named action and filter chains.
type Registry struct {
	mu      sync.RWMutex
	actions map[string][]*entry
	filters map[string][]*entry
	nextReg int
	logger  *slog.Logger
}

// New returns an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		actions: make(map[string][]*entry),
		filters: make(map[string][]*entry),
		logger:  logger,
	}
}

// AddAction registers cb under name, owned by ownerID, run in
// (priority ascending, registration-index ascending) order among all
// actions registered under the same name.
func (r *Registry) AddAction(name string, priority int, ownerID string, cb ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextReg++
	r.actions[name] = append(r.actions[name], &entry{
		ownerID: ownerID, priority: priority, registrationIndex: r.nextReg, action: cb,
	})
	sortEntries(r.actions[name])
}

// AddFilter registers cb under name, owned by ownerID, ordered the same
// way as actions.
func (r *Registry) AddFilter(name string, priority int, ownerID string, cb FilterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextReg++
	r.filters[name] = append(r.filters[name], &entry{
		ownerID: ownerID, priority: priority, registrationIndex: r.nextReg, filter: cb,
	})
	sortEntries(r.filters[name])
}

func sortEntries(entries []*entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].registrationIndex < entries[j].registrationIndex
	})
}

// DoAction invokes every callback registered under name in order. A
// callback error is logged and does not abort the chain.
func (r *Registry) DoAction(ctx context.Context, name string, args map[string]any) {
	r.mu.RLock()
	entries := append([]*entry(nil), r.actions[name]...)
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.action(ctx, args); err != nil {
			r.logger.Error("hooks: action callback failed", "hook", name, "owner", e.ownerID, "error", err)
		}
	}
}

// ApplyFilters folds every filter registered under name over value,
// left-to-right. A callback error aborts the chain immediately, returning
// the partially-transformed value alongside the error.
func (r *Registry) ApplyFilters(ctx context.Context, name string, value any, args map[string]any) (any, error) {
	r.mu.RLock()
	entries := append([]*entry(nil), r.filters[name]...)
	r.mu.RUnlock()

	cur := value
	for _, e := range entries {
		next, err := e.filter(ctx, cur, args)
		if err != nil {
			return cur, err
		}
		cur = next
	}
	return cur, nil
}

// RemoveByOwner drops every action and filter callback registered by
// ownerID, for plugin deactivation.
func (r *Registry) RemoveByOwner(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, entries := range r.actions {
		r.actions[name] = filterOutOwner(entries, ownerID)
	}
	for name, entries := range r.filters {
		r.filters[name] = filterOutOwner(entries, ownerID)
	}
}

func filterOutOwner(entries []*entry, ownerID string) []*entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.ownerID != ownerID {
			out = append(out, e)
		}
	}
	return out
}

// ApplyFilters is a generic convenience wrapper that type-asserts the
// registry's untyped result back into T, for call sites that know the
// filter's declared value type.
func ApplyFilters[T any](ctx context.Context, r *Registry, name string, value T, args map[string]any) (T, error) {
	raw, err := r.ApplyFilters(ctx, name, value, args)
	result, ok := raw.(T)
	if !ok {
		var zero T
		return zero, err
	}
	return result, err
}
