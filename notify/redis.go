package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "gemtot:broadcast-status"

// RedisNotifier publishes events on a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	mu      sync.Mutex
	pubsubs map[*redis.PubSub]struct{}
	closed  bool
}

// NewRedisNotifier uses client for publishing and subscribing. An empty
// channel selects DefaultChannel. The notifier does not own client.
func NewRedisNotifier(client *redis.Client, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  logger,
		pubsubs: make(map[*redis.PubSub]struct{}),
	}
}

// Channel returns the pub/sub channel name.
func (n *RedisNotifier) Channel() string {
	return n.channel
}

// Publish sends ev to the pub/sub channel.
func (n *RedisNotifier) Publish(ctx context.Context, ev Event) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", n.channel, err)
	}
	return nil
}

// Subscribe creates a subscription to the pub/sub channel.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}

	pubsub := n.client.Subscribe(ctx, n.channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", n.channel, err)
	}
	n.pubsubs[pubsub] = struct{}{}

	events := make(chan Event)

	go func() {
		defer close(events)
		defer n.release(pubsub)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.logger.Warn("discarding malformed broadcast status event",
						"channel", n.channel,
						"error", err)
					continue
				}

				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func (n *RedisNotifier) release(pubsub *redis.PubSub) {
	n.mu.Lock()
	delete(n.pubsubs, pubsub)
	n.mu.Unlock()
	pubsub.Close()
}

// Close closes every open subscription. The Redis client stays open.
func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	for pubsub := range n.pubsubs {
		pubsub.Close()
	}
	return nil
}
