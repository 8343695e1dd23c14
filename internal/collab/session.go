package collab

import (
	"errors"
	"sync"
	"time"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// ErrNotParticipant is returned when Apply or Leave is called for a user
// who never joined.
var ErrNotParticipant = errors.New("collab: not a participant")

// Session holds one document's participant set and append-only operation
// log. Safe for concurrent use.
type Session struct {
	mu           sync.RWMutex
	DocumentID   ids.ID
	participants map[ids.ID]*Participant
	log          []Operation
	revision     uint64
}

// NewSession creates an empty collaboration session for documentID.
func NewSession(documentID ids.ID) *Session {
	return &Session{
		DocumentID:   documentID,
		participants: make(map[ids.ID]*Participant),
	}
}

// Join adds userID as a participant, assigning it a cursor color by join
// order, and returns its Participant record.
func (s *Session) Join(userID ids.ID, name string) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := &Participant{
		UserID:     userID,
		Name:       name,
		Color:      colorForIndex(len(s.participants)),
		JoinedAt:   now,
		LastActive: now,
	}
	s.participants[userID] = p
	return p
}

// Leave removes userID from the participant set.
func (s *Session) Leave(userID ids.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[userID]; !ok {
		return ErrNotParticipant
	}
	delete(s.participants, userID)
	return nil
}

// Apply appends op to the session's log under a fresh monotonic
// revision, stamping AuthorID's activity. Returns the stored Operation
// (with its assigned revision and timestamp).
func (s *Session) Apply(authorID ids.ID, opType string, payload map[string]any) (Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[authorID]
	if !ok {
		return Operation{}, ErrNotParticipant
	}

	s.revision++
	op := Operation{
		ID:        ids.New(),
		AuthorID:  authorID,
		Revision:  s.revision,
		Type:      opType,
		Payload:   payload,
		AppliedAt: time.Now().UTC(),
	}
	s.log = append(s.log, op)
	p.LastActive = op.AppliedAt
	return op, nil
}

// History returns every operation applied after sinceRevision, in order.
func (s *Session) History(sinceRevision uint64) []Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Operation
	for _, op := range s.log {
		if op.Revision > sinceRevision {
			out = append(out, op)
		}
	}
	return out
}

// Participants returns a snapshot of the currently connected collaborators.
func (s *Session) Participants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	return out
}

// IsEmpty reports whether the session has no participants left, the
// signal a manager uses to retire it.
func (s *Session) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants) == 0
}
