package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studio-backend/internal/models"
	"studio-backend/internal/services"
)

const (
	DeadLetterQueue = services.NotificationQueue + ":dead"

	maxAttempts = 3
	popTimeout  = 5 * time.Second
	lockTTL     = 10 * time.Minute
)

type memberDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

// Mailer delivers member notifications. *services.EmailService satisfies it.
type Mailer interface {
	SendSessionBooked(to, name, subDevice string, start time.Time, minutes int) error
	SendSessionUpdated(to, name, subDevice string, start time.Time, minutes int) error
	SendSessionCancelled(to, name, subDevice string, start time.Time) error
	SendPackageExpiring(to, name string, endDate time.Time, remaining int) error
}

// Pool drains the notification queue with a fixed number of goroutines.
type Pool struct {
	redis       *redis.Client
	members     memberDirectory
	mailer      Mailer
	logger      *zap.Logger
	workerCount int
	popTimeout  time.Duration
	backoff     func(attempt int) time.Duration
	wg          sync.WaitGroup
}

func NewPool(redisClient *redis.Client, members memberDirectory, mailer Mailer, workerCount int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		members:     members,
		mailer:      mailer,
		logger:      logger.Named("worker"),
		workerCount: workerCount,
		popTimeout:  popTimeout,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

// Start launches the workers. They exit once ctx is cancelled; Wait blocks
// until they have.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.worker(ctx, id)
		}(i)
	}

	p.logger.Info("notification workers started", zap.Int("count", p.workerCount))
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	log := p.logger.With(zap.Int("worker", id))

	for {
		if ctx.Err() != nil {
			log.Debug("worker shutting down")
			return
		}

		result, err := p.redis.BLPop(ctx, p.popTimeout, services.NotificationQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn("queue pop failed", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.NotificationJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Error("failed to parse notification job", zap.Error(err))
			continue
		}

		p.handle(ctx, log, &job)
	}
}

func (p *Pool) handle(ctx context.Context, log *zap.Logger, job *models.NotificationJob) {
	lockKey := fmt.Sprintf("notification_lock:%s", job.ID)
	locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil || !locked {
		return
	}

	log.Debug("processing notification", zap.String("job_id", job.ID.String()), zap.String("type", job.Type))

	err = p.process(ctx, job)
	// The lock must be gone before a retry can be popped.
	p.redis.Del(context.Background(), lockKey)
	if err != nil {
		p.handleFailure(log, job, err)
	}
}

func (p *Pool) process(ctx context.Context, job *models.NotificationJob) error {
	member, err := p.members.GetByID(ctx, job.MemberID)
	if err != nil {
		return fmt.Errorf("failed to load member %s: %w", job.MemberID, err)
	}
	if member.Email == nil || *member.Email == "" {
		p.logger.Debug("member has no email, skipping notification",
			zap.String("member_id", member.ID.String()), zap.String("type", job.Type))
		return nil
	}
	to := *member.Email

	switch job.Type {
	case models.JobSessionBooked, models.JobSessionUpdated, models.JobSessionCancelled:
		if job.StartTime == nil {
			return fmt.Errorf("%s job %s has no start time", job.Type, job.ID)
		}
		return p.sendSession(to, member.FullName, job)
	case models.JobPackageExpiring:
		if job.EndDate == nil {
			return fmt.Errorf("%s job %s has no end date", job.Type, job.ID)
		}
		return p.mailer.SendPackageExpiring(to, member.FullName, *job.EndDate, job.Remaining)
	default:
		return fmt.Errorf("unknown notification type: %s", job.Type)
	}
}

func (p *Pool) sendSession(to, name string, job *models.NotificationJob) error {
	switch job.Type {
	case models.JobSessionBooked:
		return p.mailer.SendSessionBooked(to, name, job.SubDevice, *job.StartTime, job.Duration)
	case models.JobSessionUpdated:
		return p.mailer.SendSessionUpdated(to, name, job.SubDevice, *job.StartTime, job.Duration)
	default:
		return p.mailer.SendSessionCancelled(to, name, job.SubDevice, *job.StartTime)
	}
}

func (p *Pool) handleFailure(log *zap.Logger, job *models.NotificationJob, err error) {
	job.Attempts++
	data, _ := json.Marshal(job)

	if job.Attempts < maxAttempts {
		backoff := p.backoff(job.Attempts)
		log.Warn("notification failed, retrying",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.Attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		time.AfterFunc(backoff, func() {
			p.redis.RPush(context.Background(), services.NotificationQueue, data)
		})
		return
	}

	log.Error("notification failed permanently",
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type),
		zap.Error(err),
	)
	p.redis.RPush(context.Background(), DeadLetterQueue, data)
}
