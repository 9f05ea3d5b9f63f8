package services

import (
	"time"

	"studio-backend/internal/models"
)

// Package credit rules. All functions work on values and never fail; the
// callers decide which error a rejected precondition becomes.

// CanUse reports whether pkg can cover requested sessions at now.
func CanUse(pkg models.Package, requested int, now time.Time) bool {
	return pkg.IsActive && !now.After(pkg.EndDate) && requested > 0 && pkg.SessionsRemaining >= requested
}

func CanExtend(pkg models.Package) bool {
	return pkg.IsActive
}

// IsExpired is derived on read; expiry is never stored.
func IsExpired(pkg models.Package, now time.Time) bool {
	return now.After(pkg.EndDate)
}

// Debit returns pkg with n fewer sessions remaining. When CanUse fails the
// package is returned unchanged with ok=false.
func Debit(pkg models.Package, n int, now time.Time) (models.Package, bool) {
	if !CanUse(pkg, n, now) {
		return pkg, false
	}
	pkg.SessionsRemaining -= n
	return pkg, true
}

// Extend adds additional sessions to both counters and optionally moves the
// end date.
func Extend(pkg models.Package, additional int, newEndDate *time.Time) models.Package {
	if additional > 0 {
		pkg.TotalSessions += additional
		pkg.SessionsRemaining += additional
	}
	if newEndDate != nil {
		pkg.EndDate = *newEndDate
	}
	return pkg
}

// usageRejection explains why CanUse failed, for the error message.
func usageRejection(pkg models.Package, now time.Time) string {
	switch {
	case !pkg.IsActive:
		return "Package is inactive"
	case IsExpired(pkg, now):
		return "Package has expired"
	default:
		return "Insufficient sessions remaining in package"
	}
}
