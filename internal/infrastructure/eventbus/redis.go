package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "scrapegate:events"

// RedisRelay bridges a process-local Bus to other processes over Redis
// pub/sub, so cmd/worker (which has no SSE subscribers of its own) can
// publish lifecycle events the gateway's Bus ultimately delivers to
// /logs/stream clients.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisRelay wraps an existing *redis.Client. channel defaults to
// "scrapegate:events" when empty.
func NewRedisRelay(client *redis.Client, channel string, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisRelay{client: client, channel: channel, logger: logger}
}

// Publish serializes ev and publishes it on the shared channel.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event to redis: %w", err)
	}
	return nil
}

// Forward subscribes to the shared channel and republishes every received
// event onto local, blocking until ctx is cancelled. Intended to be run
// once by cmd/gateway so that events published by any cmd/worker process
// reach the gateway's in-process Bus (and from there, SSE subscribers).
func (r *RedisRelay) Forward(ctx context.Context, local *Bus) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis event channel closed unexpectedly")
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				if r.logger != nil {
					r.logger.Warn("dropping malformed relayed event", "error", err)
				}
				continue
			}
			local.Publish(ev)
		}
	}
}
