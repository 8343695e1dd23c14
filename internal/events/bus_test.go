package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncPriorityOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var order []string
	record := func(name string) Handler {
		return func(ctx context.Context, e Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	b.Subscribe([]string{"post.published"}, 5, false, 0, 0, record("low"))
	b.Subscribe([]string{"post.published"}, 15, false, 0, 0, record("high"))
	b.Subscribe([]string{"post.published"}, 10, false, 0, 0, record("mid"))

	b.Publish(context.Background(), NewEvent("post.published", nil))

	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestPublishSyncAbortsOnErrorByDefault(t *testing.T) {
	b := New()
	defer b.Close()

	var ran []string
	b.Subscribe([]string{"e"}, 10, false, 0, 0, func(ctx context.Context, e Event) error {
		ran = append(ran, "first")
		return errors.New("boom")
	})
	b.Subscribe([]string{"e"}, 5, false, 0, 0, func(ctx context.Context, e Event) error {
		ran = append(ran, "second")
		return nil
	})

	b.Publish(context.Background(), NewEvent("e", nil))
	assert.Equal(t, []string{"first"}, ran, "second subscriber should not run after first aborts")
}

func TestPublishSyncContinuesOnErrorWhenConfigured(t *testing.T) {
	b := New()
	defer b.Close()

	var ran []string
	b.Subscribe([]string{"e"}, 10, false, 0, 0, func(ctx context.Context, e Event) error {
		ran = append(ran, "first")
		return errors.New("boom")
	}, ContinueOnError())
	b.Subscribe([]string{"e"}, 5, false, 0, 0, func(ctx context.Context, e Event) error {
		ran = append(ran, "second")
		return nil
	})

	b.Publish(context.Background(), NewEvent("e", nil))
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestAsyncSubscriberEventuallyObservesEvent(t *testing.T) {
	b := New()
	defer b.Close()

	done := make(chan struct{})
	b.Subscribe([]string{"e"}, 0, true, 0, 0, func(ctx context.Context, e Event) error {
		close(done)
		return nil
	})

	b.Publish(context.Background(), NewEvent("e", nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async subscriber never ran")
	}
}

func TestRetryWithLinearBackoff(t *testing.T) {
	b := New()
	defer b.Close()

	var attempts int
	b.Subscribe([]string{"e"}, 0, false, 2, time.Millisecond, func(ctx context.Context, e Event) error {
		attempts++
		if attempts < 3 {
			return errors.New("retryable")
		}
		return nil
	})

	b.Publish(context.Background(), NewEvent("e", nil))
	assert.Equal(t, 3, attempts)
}

func TestHistoryDisabledByDefault(t *testing.T) {
	b := New()
	defer b.Close()
	b.Publish(context.Background(), NewEvent("e", nil))
	assert.Empty(t, b.History("e"))
}

func TestHistoryRecordsInPublishOrder(t *testing.T) {
	b := New(WithHistory(10))
	defer b.Close()

	e1 := NewEvent("e", "first")
	e2 := NewEvent("e", "second")
	b.Publish(context.Background(), e1)
	b.Publish(context.Background(), e2)

	hist := b.History("e")
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Payload)
	assert.Equal(t, "second", hist[1].Payload)
}
