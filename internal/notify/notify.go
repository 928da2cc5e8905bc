// Package notify mirrors run progress events to external subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// Publisher delivers one progress event.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev model.Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, ev model.Event) error {
	return f(ctx, ev)
}

type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes events as JSON on a Redis channel.
type RedisPublisher struct {
	client  redisPublishClient
	channel string
}

// RedisOptions configures NewRedisPublisher.
type RedisOptions struct {
	Addr     string
	Password string
	Channel  string
	DB       int
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, opts RedisOptions) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisPublisher(client, opts.Channel), nil
}

func newRedisPublisher(client redisPublishClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = "tierkeeper:events"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends ev to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Channel returns the channel events are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Relay forwards every event from in to the returned channel after handing it
// to each publisher. Publish failures are logged and never stop the stream.
// The returned channel is closed once in is closed and drained.
func Relay(ctx context.Context, in <-chan model.Event, logger *slog.Logger, pubs ...Publisher) <-chan model.Event {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(chan model.Event, cap(in))

	go func() {
		defer close(out)
		for ev := range in {
			for _, p := range pubs {
				if err := p.Publish(ctx, ev); err != nil {
					logger.Warn("failed to publish event", "run_id", ev.RunID, "seq", ev.Seq, "error", err)
				}
			}
			out <- ev
		}
	}()

	return out
}
