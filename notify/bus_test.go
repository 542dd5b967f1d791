package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	defer bus.Close()

	sub1, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	ev := Event{
		Broadcasting: true,
		Reason:       ReasonRestored,
		UUID:         "7b44b47b-52a1-5381-90c2-f09b6838c5d4",
		At:           time.Now(),
	}
	require.NoError(t, bus.Publish(ctx, ev))

	assert.Equal(t, ev, receive(t, sub1))
	assert.Equal(t, ev, receive(t, sub2))
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	assert.NoError(t, bus.Publish(context.Background(), Event{Reason: ReasonStopped}))
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	defer bus.Close()

	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.Publish(ctx, Event{Broadcasting: i%2 == 0})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, sub, subscriberBuffer)
}

func TestBusSubscriptionEndsWithContext(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers())

	cancel()

	select {
	case _, ok := <-sub:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel to close")
	}
	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBusClose(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil)

	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "second close is a no-op")

	_, ok := <-sub
	assert.False(t, ok)

	assert.ErrorIs(t, bus.Publish(ctx, Event{}), ErrClosed)
	_, err = bus.Subscribe(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
