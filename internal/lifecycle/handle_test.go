package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegisterTaskIncrementsAndReleaseDecrements(t *testing.T) {
	h := NewShutdownHandle()
	g1 := h.RegisterTask()
	g2 := h.RegisterTask()
	assert.Equal(t, int64(2), h.Count())

	g1.Release()
	assert.Equal(t, int64(1), h.Count())

	g2.Release()
	assert.Equal(t, int64(0), h.Count())
}

func TestReleaseIsIdempotent(t *testing.T) {
	h := NewShutdownHandle()
	g := h.RegisterTask()
	g.Release()
	g.Release()
	assert.Equal(t, int64(0), h.Count())
}

func TestWaitForTasksReturnsTrueWhenDrained(t *testing.T) {
	h := NewShutdownHandle()
	g := h.RegisterTask()
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Release()
	}()
	assert.True(t, h.WaitForTasks(time.Second))
}

func TestWaitForTasksReturnsFalseOnTimeout(t *testing.T) {
	h := NewShutdownHandle()
	h.RegisterTask()
	assert.False(t, h.WaitForTasks(20*time.Millisecond))
}
