package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewFacade(NewMemoryBackend(0, 0), "")

	require.NoError(t, Set(ctx, f, "k", "v", time.Minute))

	var out string
	found, err := Get(ctx, f, "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", out)
}

func TestGetExpiredReturnsMiss(t *testing.T) {
	ctx := context.Background()
	f := NewFacade(NewMemoryBackend(0, 0), "")

	require.NoError(t, Set(ctx, f, "k", "v", time.Nanosecond))
	time.Sleep(time.Millisecond)

	var out string
	found, err := Get(ctx, f, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRememberInvokesProducerOnlyOnMiss(t *testing.T) {
	ctx := context.Background()
	f := NewFacade(NewMemoryBackend(0, 0), "")

	calls := 0
	producer := func(ctx context.Context) (string, error) {
		calls++
		return "produced", nil
	}

	v1, err := Remember(ctx, f, "k", time.Minute, producer)
	require.NoError(t, err)
	assert.Equal(t, "produced", v1)

	v2, err := Remember(ctx, f, "k", time.Minute, producer)
	require.NoError(t, err)
	assert.Equal(t, "produced", v2)
	assert.Equal(t, 1, calls, "producer should only run once across both calls")
}

func TestRememberProducerErrorDoesNotCache(t *testing.T) {
	ctx := context.Background()
	f := NewFacade(NewMemoryBackend(0, 0), "")

	boom := errors.New("boom")
	_, err := Remember(ctx, f, "k", time.Minute, func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	var out string
	found, err := Get(ctx, f, "k", &out)
	require.NoError(t, err)
	assert.False(t, found, "failed producer must not leave a cached value")
}

func TestTagInvalidationFanOut(t *testing.T) {
	// S5: tag invalidation fan-out.
	ctx := context.Background()
	f := NewFacade(NewMemoryBackend(0, 0), "")

	require.NoError(t, SetWithTags(ctx, f, "post:42", "v1", time.Minute, []string{"posts", "author:7"}))
	require.NoError(t, SetWithTags(ctx, f, "post:43", "v2", time.Minute, []string{"posts"}))

	require.NoError(t, f.InvalidateTags(ctx, "author:7"))

	var v string
	found, err := Get(ctx, f, "post:42", &v)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = Get(ctx, f, "post:43", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", v)
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(2, 0)

	require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = b.Get(ctx, "a") // touch a, making b the least recently used
	require.NoError(t, b.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := b.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted as least recently used")
	_, ok, _ = b.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = b.Get(ctx, "c")
	assert.True(t, ok)
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(0, 0)

	v, err := b.Increment(ctx, "c", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	v, err = b.Increment(ctx, "c", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 6, v)

	v, err = b.Decrement(ctx, "c", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, v)
}
