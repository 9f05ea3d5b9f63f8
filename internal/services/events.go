package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"studio-backend/internal/models"
)

const ScheduleChannel = "studio:schedule"

// EventPublisher feeds the live schedule view.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ScheduleEvent) error
}

type RedisEventPublisher struct {
	redis *redis.Client
}

func NewRedisEventPublisher(redisClient *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{redis: redisClient}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, event models.ScheduleEvent) error {
	data, err := json.Marshal(models.WSMessage{Type: event.Type, Payload: event})
	if err != nil {
		return fmt.Errorf("failed to encode schedule event: %w", err)
	}
	return p.redis.Publish(ctx, ScheduleChannel, data).Err()
}
