package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/tenantconfig/internal/errors"
)

// ErrBrokerNotConnected is returned by Publish before Connect succeeded.
var ErrBrokerNotConnected = errors.Wrap(errors.ErrUnavailable, "broker not connected")

// RedisBroker is a Broker on Redis pub/sub. One channel carries every event;
// messages are JSON encoded InvalidationEvents.
type RedisBroker struct {
	url     string
	channel string
	logger  *slog.Logger

	mu     sync.Mutex
	client *redis.Client
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisBroker creates a RedisBroker. Nothing is dialed until Connect.
func NewRedisBroker(url, channel string, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{url: url, channel: channel, logger: logger}
}

// Connect dials Redis, subscribes to the channel and starts dispatching
// received events to handle.
func (b *RedisBroker) Connect(ctx context.Context, handle func(InvalidationEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return nil
	}

	opts, err := redis.ParseURL(b.url)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	pubsub := client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.client = client
	b.pubsub = pubsub

	messages := pubsub.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			var event InvalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("discarding malformed cache event",
					slog.String("channel", msg.Channel),
					slog.Any("error", err),
				)
				continue
			}
			handle(event)
		}
	}()

	return nil
}

// Publish sends event to every subscribed instance.
func (b *RedisBroker) Publish(ctx context.Context, event InvalidationEvent) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil {
		return ErrBrokerNotConnected
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode cache event: %w", err)
	}
	if err := client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish cache event: %w", err)
	}
	return nil
}

// Close unsubscribes, closes the client and waits for the dispatch goroutine.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	pubsub, client := b.pubsub, b.client
	b.pubsub, b.client = nil, nil
	b.mu.Unlock()

	var errs []error
	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.wg.Wait()

	return errors.Join(errs...)
}
