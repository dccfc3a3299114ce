package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"shieldx-cti/pkg/event"
)

// DefaultChannel is the pub/sub channel reports are published on.
const DefaultChannel = "cti.reports"

// RedisPublisherClient is the subset of *redis.Client used for publishing.
type RedisPublisherClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes reports as JSON on a Redis channel.
type RedisPublisher struct {
	client  RedisPublisherClient
	channel string
}

// NewRedisPublisher returns a publisher on channel (DefaultChannel when empty).
func NewRedisPublisher(client RedisPublisherClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Name implements Sink.
func (p *RedisPublisher) Name() string { return "redis" }

// Emit implements Sink.
func (p *RedisPublisher) Emit(ctx context.Context, r event.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
