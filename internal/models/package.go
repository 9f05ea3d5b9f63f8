package models

import (
	"time"

	"github.com/google/uuid"
)

// Package is a prepaid bundle of treatment sessions owned by one member.
type Package struct {
	ID                uuid.UUID `json:"id"`
	MemberID          uuid.UUID `json:"member_id"`
	DeviceType        string    `json:"device_type"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	TotalSessions     int       `json:"total_sessions"`
	SessionsRemaining int       `json:"sessions_remaining"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type PackageUsage struct {
	ID           uuid.UUID  `json:"id"`
	PackageID    uuid.UUID  `json:"package_id"`
	SessionID    *uuid.UUID `json:"session_id,omitempty"`
	SessionsUsed int        `json:"sessions_used"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type CreatePackageRequest struct {
	MemberID      uuid.UUID `json:"member_id"`
	DeviceType    string    `json:"device_type"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	TotalSessions int       `json:"total_sessions"`
}

type UsePackageRequest struct {
	PackageID     uuid.UUID `json:"-"`
	SessionsToUse int       `json:"sessions_to_use"`
	Notes         *string   `json:"notes"`
}

type ExtendPackageRequest struct {
	PackageID          uuid.UUID  `json:"-"`
	AdditionalSessions int        `json:"additional_sessions"`
	NewEndDate         *time.Time `json:"new_end_date"`
}
