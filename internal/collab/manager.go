package collab

import (
	"log/slog"
	"sync"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// entry pairs a document's Session with its broadcast Hub.
type entry struct {
	session *Session
	hub     *Hub
	stop    chan struct{}
}

// Manager keeps one Session/Hub pair per document, creating them lazily
// on first Join and retiring them once the last participant leaves.
type Manager struct {
	mu      sync.Mutex
	entries map[ids.ID]*entry
	logger  *slog.Logger
}

// NewManager constructs an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{entries: make(map[ids.ID]*entry), logger: logger}
}

// Join adds userID to documentID's session, starting a new session/hub
// pair if this is the first participant.
func (m *Manager) Join(documentID, userID ids.ID, name string) (*Session, *Hub) {
	m.mu.Lock()
	e, ok := m.entries[documentID]
	if !ok {
		e = &entry{
			session: NewSession(documentID),
			hub:     NewHub(documentID, m.logger),
			stop:    make(chan struct{}),
		}
		m.entries[documentID] = e
		go e.hub.Run(e.stop)
	}
	m.mu.Unlock()

	e.session.Join(userID, name)
	return e.session, e.hub
}

// Leave removes userID from documentID's session. If the session becomes
// empty, its hub is stopped and the entry is retired.
func (m *Manager) Leave(documentID, userID ids.ID) error {
	m.mu.Lock()
	e, ok := m.entries[documentID]
	m.mu.Unlock()
	if !ok {
		return ErrNotParticipant
	}

	if err := e.session.Leave(userID); err != nil {
		return err
	}

	if e.session.IsEmpty() {
		m.mu.Lock()
		if cur, ok := m.entries[documentID]; ok && cur == e {
			close(e.stop)
			delete(m.entries, documentID)
		}
		m.mu.Unlock()
	}
	return nil
}

// Get returns the session and hub for documentID, if one exists.
func (m *Manager) Get(documentID ids.ID) (*Session, *Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[documentID]
	if !ok {
		return nil, nil, false
	}
	return e.session, e.hub, true
}

// ActiveDocuments returns the ids of every document with a live session.
func (m *Manager) ActiveDocuments() []ids.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ids.ID, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	return out
}
