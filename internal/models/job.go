package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobSessionBooked    = "session-booked"
	JobSessionUpdated   = "session-updated"
	JobSessionCancelled = "session-cancelled"
	JobPackageExpiring  = "package-expiring"
)

type NotificationJob struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	MemberID   uuid.UUID  `json:"member_id"`
	SessionID  *uuid.UUID `json:"session_id,omitempty"`
	PackageID  *uuid.UUID `json:"package_id,omitempty"`
	SubDevice  string     `json:"sub_device,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	Duration   int        `json:"duration,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Remaining  int        `json:"remaining,omitempty"`
	Attempts   int        `json:"attempts"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	EventSessionBooked    = "session.booked"
	EventSessionUpdated   = "session.updated"
	EventSessionStarted   = "session.started"
	EventSessionCompleted = "session.completed"
	EventSessionDeleted   = "session.deleted"
)

type ScheduleEvent struct {
	Type    string    `json:"type"`
	Session *Session  `json:"session"`
	At      time.Time `json:"at"`
}

// API envelope
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type DataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    interface{} `json:"meta,omitempty"`
}

type PageMeta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
