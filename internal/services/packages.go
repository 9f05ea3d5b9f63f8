package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"studio-backend/internal/metrics"
	"studio-backend/internal/models"
	"studio-backend/internal/repository"
)

const (
	MinSessionsPerUse = 1
	MaxSessionsPerUse = 10

	// ExpiryWindow is how far ahead GetExpiringPackages looks.
	ExpiryWindow = 7 * 24 * time.Hour

	maxUsageHistory = 100
)

type packageStore interface {
	Create(ctx context.Context, p *models.Package) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Package, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Package, error)
	UseSessions(ctx context.Context, id uuid.UUID, n int, notes *string, now time.Time) (*models.Package, error)
	Extend(ctx context.Context, id uuid.UUID, additional int, newEndDate *time.Time) (*models.Package, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Package, error)
	FindExpiring(ctx context.Context, now, until time.Time, limit int) ([]*models.Package, error)
	ListUsages(ctx context.Context, packageID uuid.UUID, limit int) ([]*models.PackageUsage, error)
}

type PackageService struct {
	packages packageStore
	members  memberLookup
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewPackageService(packages packageStore, members memberLookup, m *metrics.Metrics, logger *zap.Logger) *PackageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PackageService{
		packages: packages,
		members:  members,
		metrics:  m,
		logger:   logger.Named("packages"),
		now:      time.Now,
	}
}

func (s *PackageService) Get(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Package not found"}
		}
		return nil, err
	}
	return pkg, nil
}

func (s *PackageService) Create(ctx context.Context, req models.CreatePackageRequest) (*models.Package, error) {
	fields := make(map[string]string)

	if req.MemberID == uuid.Nil {
		fields["member_id"] = "Member is required"
	}
	deviceType := strings.TrimSpace(req.DeviceType)
	if deviceType == "" {
		fields["device_type"] = "Device type is required"
	}
	if req.TotalSessions < 1 {
		fields["total_sessions"] = "Package must contain at least one session"
	}
	if req.StartDate.IsZero() {
		fields["start_date"] = "Start date is required"
	}
	if req.EndDate.IsZero() {
		fields["end_date"] = "End date is required"
	} else if !req.StartDate.IsZero() && req.EndDate.Before(req.StartDate) {
		fields["end_date"] = "End date must not precede start date"
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Message: "Invalid package", Fields: fields}
	}

	exists, err := s.members.Exists(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Message: "Member not found"}
	}

	pkg := &models.Package{
		MemberID:          req.MemberID,
		DeviceType:        deviceType,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		TotalSessions:     req.TotalSessions,
		SessionsRemaining: req.TotalSessions,
		IsActive:          true,
	}
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}

	s.logger.Info("package created",
		zap.String("package_id", pkg.ID.String()),
		zap.String("member_id", pkg.MemberID.String()),
		zap.Int("total_sessions", pkg.TotalSessions),
	)
	return pkg, nil
}

// UsePackageSessions debits SessionsToUse credits. Expired, inactive and
// insufficient packages are rejected as validation failures and left
// untouched.
func (s *PackageService) UsePackageSessions(ctx context.Context, req models.UsePackageRequest) (*models.Package, error) {
	fields := make(map[string]string)
	if req.SessionsToUse < MinSessionsPerUse || req.SessionsToUse > MaxSessionsPerUse {
		fields["sessions_to_use"] = "Sessions to use must be between 1 and 10"
	}
	validateNotes(req.Notes, fields)
	if len(fields) > 0 {
		return nil, &ValidationError{Message: "Invalid package usage", Fields: fields}
	}

	pkg, err := s.Get(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !CanUse(*pkg, req.SessionsToUse, now) {
		return nil, invalid(usageRejection(*pkg, now))
	}

	updated, err := s.packages.UseSessions(ctx, pkg.ID, req.SessionsToUse, req.Notes, now)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredit) {
			return nil, invalid("Package can no longer cover the requested sessions")
		}
		return nil, err
	}

	s.metrics.SessionsUsed(req.SessionsToUse)
	s.logger.Info("package sessions used",
		zap.String("package_id", updated.ID.String()),
		zap.Int("used", req.SessionsToUse),
		zap.Int("sessions_remaining", updated.SessionsRemaining),
	)
	return updated, nil
}

func (s *PackageService) ExtendPackage(ctx context.Context, req models.ExtendPackageRequest) (*models.Package, error) {
	if req.AdditionalSessions < 1 {
		return nil, &ValidationError{
			Message: "Invalid package extension",
			Fields:  map[string]string{"additional_sessions": "Additional sessions must be at least 1"},
		}
	}

	pkg, err := s.Get(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}

	if !CanExtend(*pkg) {
		return nil, invalid("Cannot extend an inactive package")
	}
	if req.NewEndDate != nil && req.NewEndDate.Before(pkg.StartDate) {
		return nil, &ValidationError{
			Message: "Invalid package extension",
			Fields:  map[string]string{"new_end_date": "New end date must not precede the package start date"},
		}
	}

	updated, err := s.packages.Extend(ctx, pkg.ID, req.AdditionalSessions, req.NewEndDate)
	if err != nil {
		if errors.Is(err, repository.ErrPackageInactive) {
			return nil, invalid("Cannot extend an inactive package")
		}
		return nil, err
	}

	s.logger.Info("package extended",
		zap.String("package_id", updated.ID.String()),
		zap.Int("added", req.AdditionalSessions),
		zap.Int("total_sessions", updated.TotalSessions),
		zap.Time("end_date", updated.EndDate),
	)
	return updated, nil
}

// GetExpiringPackages lists active packages ending within the next seven
// days, soonest first.
func (s *PackageService) GetExpiringPackages(ctx context.Context, limit int) ([]*models.Package, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	} else if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	now := s.now()
	return s.packages.FindExpiring(ctx, now, now.Add(ExpiryWindow), limit)
}

func (s *PackageService) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Package, error) {
	return s.packages.ListByMember(ctx, memberID)
}

func (s *PackageService) Deactivate(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	pkg, err := s.packages.Deactivate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Package not found"}
		}
		return nil, err
	}
	s.logger.Info("package deactivated", zap.String("package_id", pkg.ID.String()))
	return pkg, nil
}

func (s *PackageService) Usages(ctx context.Context, id uuid.UUID) ([]*models.PackageUsage, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.packages.ListUsages(ctx, id, maxUsageHistory)
}
