package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"studio-backend/internal/metrics"
	"studio-backend/internal/models"
)

const NotificationQueue = "queue:notifications"

// Notifier hands member notifications to whatever delivers them. Scheduling
// and package operations never fail because a notification could not be queued.
type Notifier interface {
	Enqueue(ctx context.Context, job models.NotificationJob) error
}

type RedisNotifier struct {
	redis   *redis.Client
	metrics *metrics.Metrics
}

func NewRedisNotifier(redisClient *redis.Client, m *metrics.Metrics) *RedisNotifier {
	return &RedisNotifier{redis: redisClient, metrics: m}
}

func (n *RedisNotifier) Enqueue(ctx context.Context, job models.NotificationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode notification job: %w", err)
	}

	if err := n.redis.RPush(ctx, NotificationQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	n.metrics.Queued(job.Type)
	return nil
}

func sessionJob(jobType string, s *models.Session) models.NotificationJob {
	id := s.ID
	start := s.StartTime
	return models.NotificationJob{
		Type:      jobType,
		MemberID:  s.MemberID,
		SessionID: &id,
		SubDevice: s.SubDeviceID,
		StartTime: &start,
		Duration:  s.DurationMinutes,
	}
}

func packageJob(jobType string, p *models.Package) models.NotificationJob {
	id := p.ID
	end := p.EndDate
	return models.NotificationJob{
		Type:      jobType,
		MemberID:  p.MemberID,
		PackageID: &id,
		EndDate:   &end,
		Remaining: p.SessionsRemaining,
	}
}
