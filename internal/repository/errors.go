package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSlotTaken is returned when the sessions_no_overlap exclusion
	// constraint rejects a write.
	ErrSlotTaken = errors.New("sub-device time slot already taken")

	// ErrStaleStatus means a conditional status write matched no row because
	// the session left the expected state first.
	ErrStaleStatus = errors.New("session status changed concurrently")

	// ErrInsufficientCredit means a conditional debit matched no row.
	ErrInsufficientCredit = errors.New("package cannot cover the requested sessions")

	ErrPackageInactive = errors.New("package is inactive")
)

const exclusionViolation = "23P01"

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return ErrSlotTaken
	}
	return err
}
