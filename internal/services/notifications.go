package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studio-backend/internal/models"
)

const (
	expiryPollInterval = 1 * time.Hour
	expiryBatchSize    = 500
	expiryNoticeTTL    = 48 * time.Hour
)

type expiringFinder interface {
	FindExpiring(ctx context.Context, now, until time.Time, limit int) ([]*models.Package, error)
}

// PackageExpiryScheduler queues one reminder per package per day while the
// package is inside its reminder window.
type PackageExpiryScheduler struct {
	packages expiringFinder
	redis    *redis.Client
	notifier Notifier
	window   time.Duration
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewPackageExpiryScheduler(packages expiringFinder, redisClient *redis.Client, notifier Notifier, reminderDays int, logger *zap.Logger) *PackageExpiryScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reminderDays <= 0 {
		reminderDays = 7
	}
	return &PackageExpiryScheduler{
		packages: packages,
		redis:    redisClient,
		notifier: notifier,
		window:   time.Duration(reminderDays) * 24 * time.Hour,
		logger:   logger.Named("expiry"),
		interval: expiryPollInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *PackageExpiryScheduler) Run(ctx context.Context) {
	s.logger.Info("package expiry scheduler started", zap.Duration("window", s.window))

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("package expiry scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep queues reminders for packages ending inside the window and returns
// how many were queued.
func (s *PackageExpiryScheduler) Sweep(ctx context.Context) int {
	now := s.now()

	pkgs, err := s.packages.FindExpiring(ctx, now, now.Add(s.window), expiryBatchSize)
	if err != nil {
		s.logger.Error("failed to list expiring packages", zap.Error(err))
		return 0
	}

	queued := 0
	for _, pkg := range pkgs {
		if pkg.SessionsRemaining == 0 {
			continue
		}

		first, err := s.redis.SetNX(ctx, expiryNoticeKey(pkg.ID, now), "1", expiryNoticeTTL).Result()
		if err != nil {
			s.logger.Warn("failed to claim expiry notice", zap.String("package_id", pkg.ID.String()), zap.Error(err))
			continue
		}
		if !first {
			continue
		}

		if err := s.notifier.Enqueue(ctx, packageJob(models.JobPackageExpiring, pkg)); err != nil {
			s.logger.Warn("failed to queue expiry notice", zap.String("package_id", pkg.ID.String()), zap.Error(err))
			s.redis.Del(ctx, expiryNoticeKey(pkg.ID, now))
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.Info("expiry notices queued", zap.Int("count", queued))
	}
	return queued
}

func expiryNoticeKey(packageID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("expiry_notice:%s:%s", packageID, now.Format("2006-01-02"))
}
