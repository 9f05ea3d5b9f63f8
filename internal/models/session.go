package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionBooked    SessionStatus = "booked"
	SessionConfirmed SessionStatus = "confirmed"
	SessionCancelled SessionStatus = "cancelled"
	SessionCompleted SessionStatus = "completed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionBooked, SessionConfirmed, SessionCancelled, SessionCompleted:
		return true
	}
	return false
}

// Active sessions still occupy their sub-device's time grid.
func (s SessionStatus) Active() bool {
	return s == SessionBooked || s == SessionConfirmed
}

type Session struct {
	ID              uuid.UUID     `json:"id"`
	MemberID        uuid.UUID     `json:"member_id"`
	SubDeviceID     string        `json:"sub_device_id"`
	StartTime       time.Time     `json:"start_time"`
	DurationMinutes int           `json:"duration"`
	Status          SessionStatus `json:"status"`
	Notes           *string       `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (s *Session) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

type CreateSessionRequest struct {
	MemberID        uuid.UUID `json:"member_id"`
	SubDeviceID     string    `json:"sub_device_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration"`
	Notes           *string   `json:"notes"`
}

// UpdateSessionRequest carries only the fields a caller wants to change.
type UpdateSessionRequest struct {
	SubDeviceID     *string        `json:"sub_device_id"`
	StartTime       *time.Time     `json:"start_time"`
	DurationMinutes *int           `json:"duration"`
	Status          *SessionStatus `json:"status"`
	Notes           *string        `json:"notes"`
}

func (r UpdateSessionRequest) Empty() bool {
	return r.SubDeviceID == nil && r.StartTime == nil && r.DurationMinutes == nil && r.Status == nil && r.Notes == nil
}

type CompleteSessionRequest struct {
	// PackageID, when set, debits one session credit in the same transaction.
	PackageID *uuid.UUID `json:"package_id"`
}

type CompleteSessionResult struct {
	Session *Session `json:"session"`
	Package *Package `json:"package,omitempty"`
}

type SessionSortField string

const (
	SortByStartTime SessionSortField = "start_time"
	SortByCreatedAt SessionSortField = "created_at"
	SortByDuration  SessionSortField = "duration"
)

type SessionSearchParams struct {
	Statuses    []SessionStatus
	MemberID    *uuid.UUID
	SubDeviceID string
	From        *time.Time
	To          *time.Time
	SortBy      SessionSortField
	SortDesc    bool
	Page        int
	Limit       int
}

func (f SessionSortField) Valid() bool {
	return f == SortByStartTime || f == SortByCreatedAt || f == SortByDuration
}

func (p SessionSearchParams) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}
