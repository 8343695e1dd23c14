package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustpress/rustpress-core/internal/ids"
)

func TestJoinAssignsDistinctColors(t *testing.T) {
	s := NewSession(ids.New())
	p1 := s.Join(ids.New(), "Alice")
	p2 := s.Join(ids.New(), "Bob")
	assert.NotEqual(t, p1.Color, p2.Color)
	assert.Len(t, s.Participants(), 2)
}

func TestApplyRejectsNonParticipant(t *testing.T) {
	s := NewSession(ids.New())
	_, err := s.Apply(ids.New(), "insert_text", map[string]any{"text": "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestApplyAssignsMonotonicRevisions(t *testing.T) {
	s := NewSession(ids.New())
	author := ids.New()
	s.Join(author, "Alice")

	op1, err := s.Apply(author, "insert_text", map[string]any{"text": "a"})
	require.NoError(t, err)
	op2, err := s.Apply(author, "insert_text", map[string]any{"text": "b"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), op1.Revision)
	assert.Equal(t, uint64(2), op2.Revision)
}

func TestHistoryReturnsOperationsAfterRevision(t *testing.T) {
	s := NewSession(ids.New())
	author := ids.New()
	s.Join(author, "Alice")

	s.Apply(author, "insert_text", map[string]any{"text": "a"})
	s.Apply(author, "insert_text", map[string]any{"text": "b"})
	s.Apply(author, "insert_text", map[string]any{"text": "c"})

	history := s.History(1)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[0].Revision)
	assert.Equal(t, uint64(3), history[1].Revision)
}

func TestLeaveRemovesParticipant(t *testing.T) {
	s := NewSession(ids.New())
	userID := ids.New()
	s.Join(userID, "Alice")
	require.NoError(t, s.Leave(userID))
	assert.True(t, s.IsEmpty())
}

func TestLeaveUnknownParticipantErrors(t *testing.T) {
	s := NewSession(ids.New())
	assert.ErrorIs(t, s.Leave(ids.New()), ErrNotParticipant)
}
