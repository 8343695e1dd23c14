// Package collab implements the Collaboration Session described in
// SPEC_FULL.md §4.13: a per-document operation log and participant set,
// broadcast to connected clients over WebSocket. This is a summary
// implementation per the spec table's own annotation — it exposes
// Join/Leave/Apply/History, not a full operational-transform engine.
package collab

import (
	"time"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// Operation is one edit applied to a document, grounded on
// rustpress-editor's collaboration::Operation/OperationType: an opaque,
// client-defined payload (insert/delete/replace/block moves and the
// rest) carried alongside the bookkeeping the session needs (author,
// revision, timestamp).
type Operation struct {
	ID        ids.ID         `json:"id"`
	AuthorID  ids.ID         `json:"author_id"`
	Revision  uint64         `json:"revision"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	AppliedAt time.Time      `json:"applied_at"`
}

// Participant is a connected collaborator.
type Participant struct {
	UserID     ids.ID    `json:"user_id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	JoinedAt   time.Time `json:"joined_at"`
	LastActive time.Time `json:"last_active"`
}

// cursorColors mirrors rustpress-editor's CURSOR_COLORS palette, assigned
// round-robin as participants join.
var cursorColors = []string{
	"#ef4444", "#f97316", "#eab308", "#22c55e", "#14b8a6",
	"#3b82f6", "#8b5cf6", "#ec4899", "#f43f5e", "#06b6d4",
}

func colorForIndex(i int) string {
	return cursorColors[i%len(cursorColors)]
}
