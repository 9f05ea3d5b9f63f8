package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studio-backend/internal/models"
)

// Overlaps compares the half-open intervals [aStart, aStart+aDur) and
// [bStart, bStart+bDur). Back-to-back sessions do not overlap.
func Overlaps(aStart time.Time, aDur time.Duration, bStart time.Time, bDur time.Duration) bool {
	return aStart.Before(bStart.Add(bDur)) && bStart.Before(aStart.Add(aDur))
}

// FindConflict returns the first active session on subDeviceID that overlaps
// the proposed window, skipping exclude.
func FindConflict(existing []*models.Session, subDeviceID string, start time.Time, durationMinutes int, exclude *uuid.UUID) *models.Session {
	dur := time.Duration(durationMinutes) * time.Minute
	for _, s := range existing {
		if s.SubDeviceID != subDeviceID || !s.Status.Active() {
			continue
		}
		if exclude != nil && s.ID == *exclude {
			continue
		}
		if Overlaps(s.StartTime, time.Duration(s.DurationMinutes)*time.Minute, start, dur) {
			return s
		}
	}
	return nil
}

type activeSessionLister interface {
	ListActiveOnDevice(ctx context.Context, subDeviceID string, from, to time.Time) ([]*models.Session, error)
}

// ConflictChecker answers whether a proposed booking collides with an active
// session. It should be called with a lister bound to a transaction holding
// the sub-device lock, otherwise the answer is only advisory.
type ConflictChecker struct{}

func (ConflictChecker) HasConflict(ctx context.Context, q activeSessionLister, subDeviceID string, start time.Time, durationMinutes int, exclude *uuid.UUID) (bool, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	candidates, err := q.ListActiveOnDevice(ctx, subDeviceID, start, end)
	if err != nil {
		return false, err
	}
	return FindConflict(candidates, subDeviceID, start, durationMinutes, exclude) != nil, nil
}
