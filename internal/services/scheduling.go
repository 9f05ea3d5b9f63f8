package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"studio-backend/internal/metrics"
	"studio-backend/internal/models"
	"studio-backend/internal/repository"
)

const (
	MinSessionMinutes = 15
	MaxSessionMinutes = 480
	MaxNotesLength    = 1000
	SlotGranularity   = 15 * time.Minute

	defaultSearchLimit = 20
	maxSearchLimit     = 100
	MaxSearchPage      = 10000

	maxUpdateAttempts = 3
)

// errDeviceMoved means the row left the locked sub-device between the
// unlocked read and the lock.
var errDeviceMoved = fmt.Errorf("session changed sub-device: %w", repository.ErrStaleStatus)

type sessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Search(ctx context.Context, params models.SessionSearchParams) ([]*models.Session, int, error)
	FindUpcomingByMember(ctx context.Context, memberID uuid.UUID, from time.Time, limit int) ([]*models.Session, error)
	WithDeviceLock(ctx context.Context, subDeviceIDs []string, fn func(tx repository.SessionTx) error) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus) (*models.Session, error)
	CompleteWithDebit(ctx context.Context, sessionID, packageID uuid.UUID, now time.Time) (*models.Session, *models.Package, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memberLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type packageLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Package, error)
}

type SchedulingService struct {
	sessions  sessionStore
	members   memberLookup
	packages  packageLookup
	conflicts ConflictChecker
	notifier  Notifier
	events    EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	devices   map[string]bool
	now       func() time.Time
}

// NewSchedulingService wires the booking service. An empty devices list
// accepts any sub-device key.
func NewSchedulingService(
	sessions sessionStore,
	members memberLookup,
	packages packageLookup,
	notifier Notifier,
	events EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
	devices []string,
) *SchedulingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]bool, len(devices))
	for _, d := range devices {
		known[d] = true
	}
	return &SchedulingService{
		sessions: sessions,
		members:  members,
		packages: packages,
		notifier: notifier,
		events:   events,
		metrics:  m,
		logger:   logger.Named("scheduling"),
		devices:  known,
		now:      time.Now,
	}
}

// RoundToSlot snaps t to the nearest 15 minute boundary.
func RoundToSlot(t time.Time) time.Time {
	return t.Round(SlotGranularity)
}

func (s *SchedulingService) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}
	return session, nil
}

func (s *SchedulingService) Create(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	now := s.now()
	fields := make(map[string]string)

	if req.MemberID == uuid.Nil {
		fields["member_id"] = "Member is required"
	}
	subDevice := strings.TrimSpace(req.SubDeviceID)
	s.validateSubDevice(subDevice, fields)
	if req.StartTime.IsZero() {
		fields["start_time"] = "Start time is required"
	} else if req.StartTime.Before(now) {
		fields["start_time"] = "Start time cannot be in the past"
	}
	validateDuration(req.DurationMinutes, fields)
	validateNotes(req.Notes, fields)

	if len(fields) > 0 {
		return nil, &ValidationError{Message: "Invalid session", Fields: fields}
	}

	exists, err := s.members.Exists(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Message: "Member not found"}
	}

	session := &models.Session{
		MemberID:        req.MemberID,
		SubDeviceID:     subDevice,
		StartTime:       RoundToSlot(req.StartTime),
		DurationMinutes: req.DurationMinutes,
		Status:          models.SessionBooked,
		Notes:           req.Notes,
	}

	err = s.sessions.WithDeviceLock(ctx, []string{subDevice}, func(tx repository.SessionTx) error {
		conflict, err := s.conflicts.HasConflict(ctx, tx, session.SubDeviceID, session.StartTime, session.DurationMinutes, nil)
		if err != nil {
			return err
		}
		if conflict {
			return repository.ErrSlotTaken
		}
		return tx.Insert(ctx, session)
	})
	if err != nil {
		return nil, s.bookingError(err, session)
	}

	s.metrics.Booked()
	s.logger.Info("session booked",
		zap.String("session_id", session.ID.String()),
		zap.String("sub_device", session.SubDeviceID),
		zap.Time("start_time", session.StartTime),
		zap.Int("duration", session.DurationMinutes),
	)
	s.publish(ctx, models.EventSessionBooked, session)
	s.notify(ctx, sessionJob(models.JobSessionBooked, session))

	return session, nil
}

func (s *SchedulingService) Update(ctx context.Context, id uuid.UUID, req models.UpdateSessionRequest) (*models.Session, error) {
	if req.Empty() {
		return nil, invalid("No fields to update")
	}

	var current, merged models.Session
	var moved bool
	for attempt := 1; ; attempt++ {
		snapshot, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		lockIDs := []string{snapshot.SubDeviceID}
		if req.SubDeviceID != nil {
			if target := strings.TrimSpace(*req.SubDeviceID); target != snapshot.SubDeviceID {
				lockIDs = append(lockIDs, target)
			}
		}

		err = s.sessions.WithDeviceLock(ctx, lockIDs, func(tx repository.SessionTx) error {
			row, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			current = *row
			merged, moved, err = s.mergeUpdate(current, req)
			if err != nil {
				return err
			}
			if !slices.Contains(lockIDs, merged.SubDeviceID) {
				return errDeviceMoved
			}
			if moved && merged.Status.Active() {
				conflict, err := s.conflicts.HasConflict(ctx, tx, merged.SubDeviceID, merged.StartTime, merged.DurationMinutes, &merged.ID)
				if err != nil {
					return err
				}
				if conflict {
					return repository.ErrSlotTaken
				}
			}
			return tx.Save(ctx, &merged, current.Status)
		})
		if errors.Is(err, errDeviceMoved) && attempt < maxUpdateAttempts {
			continue
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		if err != nil {
			return nil, s.bookingError(err, &merged)
		}
		break
	}

	if merged.Status != current.Status {
		s.metrics.Transition(string(merged.Status))
	}
	s.logger.Info("session updated",
		zap.String("session_id", merged.ID.String()),
		zap.String("sub_device", merged.SubDeviceID),
		zap.String("status", string(merged.Status)),
		zap.Bool("moved", moved),
	)
	s.publish(ctx, models.EventSessionUpdated, &merged)
	switch {
	case merged.Status == models.SessionCancelled && current.Status != models.SessionCancelled:
		s.notify(ctx, sessionJob(models.JobSessionCancelled, &merged))
	case moved:
		s.notify(ctx, sessionJob(models.JobSessionUpdated, &merged))
	}

	return &merged, nil
}

// mergeUpdate applies req to the locked row. moved reports whether the
// occupied slot changed.
func (s *SchedulingService) mergeUpdate(current models.Session, req models.UpdateSessionRequest) (models.Session, bool, error) {
	if !CanModify(current.Status) {
		return current, false, invalid(fmt.Sprintf("Cannot modify a %s session", current.Status))
	}

	fields := make(map[string]string)
	merged := current

	if req.SubDeviceID != nil {
		merged.SubDeviceID = strings.TrimSpace(*req.SubDeviceID)
		s.validateSubDevice(merged.SubDeviceID, fields)
	}
	if req.StartTime != nil {
		merged.StartTime = RoundToSlot(*req.StartTime)
		if !merged.StartTime.Equal(current.StartTime) && req.StartTime.Before(s.now()) {
			fields["start_time"] = "Start time cannot be in the past"
		}
	}
	if req.DurationMinutes != nil {
		validateDuration(*req.DurationMinutes, fields)
		merged.DurationMinutes = *req.DurationMinutes
	}
	if req.Notes != nil {
		validateNotes(req.Notes, fields)
		merged.Notes = req.Notes
	}
	if req.Status != nil {
		if !CanTransition(current.Status, *req.Status) {
			fields["status"] = fmt.Sprintf("Cannot change status from %s to %s", current.Status, *req.Status)
		}
		merged.Status = *req.Status
	}

	if len(fields) > 0 {
		return current, false, &ValidationError{Message: "Invalid session update", Fields: fields}
	}

	moved := merged.SubDeviceID != current.SubDeviceID ||
		!merged.StartTime.Equal(current.StartTime) ||
		merged.DurationMinutes != current.DurationMinutes
	return merged, moved, nil
}

// StartSession re-affirms a confirmed session inside its start window. The
// status stays confirmed.
func (s *SchedulingService) StartSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if reason := CheckStart(*existing, s.now()); reason != "" {
		return nil, invalid(reason)
	}

	started, err := s.sessions.TransitionStatus(ctx, id, []models.SessionStatus{models.SessionConfirmed}, models.SessionConfirmed)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, invalid("Session is no longer confirmed")
		}
		return nil, err
	}

	s.logger.Info("session started", zap.String("session_id", started.ID.String()), zap.String("sub_device", started.SubDeviceID))
	s.publish(ctx, models.EventSessionStarted, started)

	return started, nil
}

// CompleteSession marks a confirmed session completed. When req.PackageID is
// set, one credit is debited from that package in the same transaction and
// neither change is kept if the other fails. Without a package id no credit
// is touched.
func (s *SchedulingService) CompleteSession(ctx context.Context, id uuid.UUID, req models.CompleteSessionRequest) (*models.CompleteSessionResult, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if reason := CheckComplete(*existing); reason != "" {
		return nil, invalid(reason)
	}

	result := &models.CompleteSessionResult{}

	if req.PackageID == nil {
		result.Session, err = s.sessions.TransitionStatus(ctx, id, []models.SessionStatus{models.SessionConfirmed}, models.SessionCompleted)
	} else {
		now := s.now()
		pkg, getErr := s.packages.GetByID(ctx, *req.PackageID)
		if getErr != nil {
			if errors.Is(getErr, pgx.ErrNoRows) {
				return nil, &NotFoundError{Message: "Package not found"}
			}
			return nil, getErr
		}
		if pkg.MemberID != existing.MemberID {
			return nil, &ValidationError{
				Message: "Package belongs to a different member",
				Fields:  map[string]string{"package_id": "Package belongs to a different member"},
			}
		}
		if !CanUse(*pkg, 1, now) {
			return nil, invalid(usageRejection(*pkg, now))
		}
		result.Session, result.Package, err = s.sessions.CompleteWithDebit(ctx, id, *req.PackageID, now)
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleStatus):
			return nil, invalid("Session is no longer confirmed")
		case errors.Is(err, repository.ErrInsufficientCredit):
			return nil, invalid("Package can no longer cover this session")
		}
		return nil, err
	}

	s.metrics.Transition(string(models.SessionCompleted))
	logFields := []zap.Field{zap.String("session_id", id.String())}
	if result.Package != nil {
		s.metrics.SessionsUsed(1)
		logFields = append(logFields,
			zap.String("package_id", result.Package.ID.String()),
			zap.Int("sessions_remaining", result.Package.SessionsRemaining),
		)
	}
	s.logger.Info("session completed", logFields...)
	s.publish(ctx, models.EventSessionCompleted, result.Session)

	return result, nil
}

func (s *SchedulingService) Search(ctx context.Context, params models.SessionSearchParams) ([]*models.Session, int, models.SessionSearchParams, error) {
	fields := make(map[string]string)

	for _, st := range params.Statuses {
		if !st.Valid() {
			fields["status"] = fmt.Sprintf("Unknown status %q", st)
			break
		}
	}
	if params.SortBy == "" {
		params.SortBy = models.SortByStartTime
	} else if !params.SortBy.Valid() {
		fields["sort_by"] = "Sort by start_time, created_at or duration"
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		fields["to"] = "End of range must not precede its start"
	}
	if params.Page > MaxSearchPage {
		fields["page"] = fmt.Sprintf("Page must not exceed %d", MaxSearchPage)
	}
	if len(fields) > 0 {
		return nil, 0, params, &ValidationError{Message: "Invalid search parameters", Fields: fields}
	}

	if params.Page < 1 {
		params.Page = 1
	}
	switch {
	case params.Limit <= 0:
		params.Limit = defaultSearchLimit
	case params.Limit > maxSearchLimit:
		params.Limit = maxSearchLimit
	}

	sessions, total, err := s.sessions.Search(ctx, params)
	if err != nil {
		return nil, 0, params, err
	}
	return sessions, total, params, nil
}

func (s *SchedulingService) UpcomingForMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*models.Session, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}
	return s.sessions.FindUpcomingByMember(ctx, memberID, s.now(), limit)
}

// Delete is an administrative override and bypasses lifecycle checks.
func (s *SchedulingService) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Session not found"}
		}
		return err
	}

	s.logger.Warn("session deleted", zap.String("session_id", id.String()), zap.String("sub_device", existing.SubDeviceID))
	s.publish(ctx, models.EventSessionDeleted, existing)
	return nil
}

func (s *SchedulingService) validateSubDevice(subDevice string, fields map[string]string) {
	if subDevice == "" {
		fields["sub_device_id"] = "Sub-device is required"
		return
	}
	if len(s.devices) > 0 && !s.devices[subDevice] {
		fields["sub_device_id"] = fmt.Sprintf("Unknown sub-device %q", subDevice)
	}
}

func validateDuration(minutes int, fields map[string]string) {
	if minutes < MinSessionMinutes || minutes > MaxSessionMinutes {
		fields["duration"] = fmt.Sprintf("Duration must be between %d and %d minutes", MinSessionMinutes, MaxSessionMinutes)
	}
}

func validateNotes(notes *string, fields map[string]string) {
	if notes != nil && utf8.RuneCountInString(*notes) > MaxNotesLength {
		fields["notes"] = fmt.Sprintf("Notes must be at most %d characters", MaxNotesLength)
	}
}

func (s *SchedulingService) bookingError(err error, session *models.Session) error {
	switch {
	case errors.Is(err, repository.ErrSlotTaken):
		s.metrics.Conflict()
		s.logger.Info("booking conflict",
			zap.String("sub_device", session.SubDeviceID),
			zap.Time("start_time", session.StartTime),
			zap.Int("duration", session.DurationMinutes),
		)
		return &ConflictError{Message: fmt.Sprintf("%s is already booked in this time slot", session.SubDeviceID)}
	case errors.Is(err, repository.ErrStaleStatus):
		return invalid("Session was modified by another request, reload and try again")
	}
	return err
}

func (s *SchedulingService) publish(ctx context.Context, eventType string, session *models.Session) {
	if s.events == nil {
		return
	}
	event := models.ScheduleEvent{Type: eventType, Session: session, At: s.now().UTC()}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish schedule event", zap.String("type", eventType), zap.Error(err))
	}
}

func (s *SchedulingService) notify(ctx context.Context, job models.NotificationJob) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, job); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", job.Type), zap.Error(err))
	}
}
