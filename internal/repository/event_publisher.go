package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// RedisEventPublisher broadcasts admission facts on a Redis pub/sub channel.
type RedisEventPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisEventPublisher constructs the publisher.
func NewRedisEventPublisher(client *redis.Client, channel string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, channel: channel}
}

// Publish sends event as JSON.
func (p *RedisEventPublisher) Publish(ctx context.Context, event models.AdmissionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal admission event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s on %s: %w", event.Type, p.channel, err)
	}
	return nil
}
