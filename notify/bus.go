package notify

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscriber queue length. Events beyond it are
// dropped for that subscriber.
const subscriberBuffer = 16

// Bus is an in-process Notifier. Publish never blocks on slow subscribers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewBus returns an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Publish implements Notifier.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping broadcast status event for slow subscriber",
				"broadcasting", ev.Broadcasting,
				"reason", ev.Reason)
		}
	}
	return nil
}

// Subscribe implements Notifier.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan Event, subscriberBuffer)
	b.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()

	return ch, nil
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close implements Notifier.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
