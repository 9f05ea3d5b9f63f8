package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/models"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	hour := time.Hour

	tests := []struct {
		name   string
		aStart time.Time
		aDur   time.Duration
		bStart time.Time
		bDur   time.Duration
		want   bool
	}{
		{"identical", at(10, 0), hour, at(10, 0), hour, true},
		{"b starts inside a", at(10, 0), hour, at(10, 15), hour, true},
		{"b contains a", at(10, 15), 15 * time.Minute, at(10, 0), hour, true},
		{"touching after", at(10, 0), hour, at(11, 0), hour, false},
		{"touching before", at(11, 0), hour, at(10, 0), hour, false},
		{"disjoint", at(8, 0), hour, at(10, 0), hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.aStart, tt.aDur, tt.bStart, tt.bDur))
			assert.Equal(t, tt.want, Overlaps(tt.bStart, tt.bDur, tt.aStart, tt.aDur), "overlap must be symmetric")
		})
	}
}

func TestFindConflict(t *testing.T) {
	booked := &models.Session{ID: uuid.New(), SubDeviceID: "Vacu 1", StartTime: at(10, 0), DurationMinutes: 30, Status: models.SessionBooked}
	cancelled := &models.Session{ID: uuid.New(), SubDeviceID: "Vacu 1", StartTime: at(11, 0), DurationMinutes: 60, Status: models.SessionCancelled}
	otherDevice := &models.Session{ID: uuid.New(), SubDeviceID: "Vacu 2", StartTime: at(12, 0), DurationMinutes: 60, Status: models.SessionConfirmed}
	existing := []*models.Session{booked, cancelled, otherDevice}

	assert.Equal(t, booked, FindConflict(existing, "Vacu 1", at(10, 15), 30, nil))
	assert.Nil(t, FindConflict(existing, "Vacu 1", at(10, 30), 30, nil), "back-to-back slot is free")
	assert.Nil(t, FindConflict(existing, "Vacu 1", at(11, 0), 60, nil), "cancelled sessions release their slot")
	assert.Nil(t, FindConflict(existing, "Vacu 1", at(12, 0), 60, nil), "other sub-devices never conflict")
	assert.Nil(t, FindConflict(existing, "Vacu 1", at(10, 0), 45, &booked.ID), "a session never conflicts with itself")
}

type stubLister struct {
	sessions []*models.Session
	err      error
	gotFrom  time.Time
	gotTo    time.Time
}

func (s *stubLister) ListActiveOnDevice(ctx context.Context, subDeviceID string, from, to time.Time) ([]*models.Session, error) {
	s.gotFrom, s.gotTo = from, to
	return s.sessions, s.err
}

func TestHasConflict(t *testing.T) {
	lister := &stubLister{sessions: []*models.Session{
		{ID: uuid.New(), SubDeviceID: "Vacu 1", StartTime: at(10, 0), DurationMinutes: 30, Status: models.SessionConfirmed},
	}}

	conflict, err := ConflictChecker{}.HasConflict(context.Background(), lister, "Vacu 1", at(10, 15), 30, nil)
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.True(t, lister.gotFrom.Equal(at(10, 15)))
	assert.True(t, lister.gotTo.Equal(at(10, 45)))

	conflict, err = ConflictChecker{}.HasConflict(context.Background(), lister, "Vacu 1", at(10, 30), 30, nil)
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestHasConflictPropagatesError(t *testing.T) {
	lister := &stubLister{err: errStorage}

	_, err := ConflictChecker{}.HasConflict(context.Background(), lister, "Vacu 1", at(10, 0), 30, nil)

	assert.ErrorIs(t, err, errStorage)
}
