// Package events implements the in-process publish/subscribe bus: priority
// ordering, sync/async subscriber lanes, retry with backoff, and an
// optional capped replay history.
package events

import (
	"time"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// Event is immutable once published.
type Event struct {
	ID            ids.ID
	Type          string
	AggregateID   string
	AggregateType string
	TenantID      ids.ID
	Payload       any
	Metadata      map[string]string // correlation/causation ids and the like
	OccurredAt    time.Time
}

// NewEvent constructs an Event of the given type with a fresh id and
// OccurredAt timestamp.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:         ids.New(),
		Type:       eventType,
		Payload:    payload,
		Metadata:   map[string]string{},
		OccurredAt: time.Now(),
	}
}
