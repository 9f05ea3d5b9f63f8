package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio-backend/internal/models"
)

const packageColumns = `id, member_id, device_type, start_date, end_date, total_sessions, sessions_remaining, is_active, created_at, updated_at`

type PackageRepo struct {
	pool *pgxpool.Pool
}

func NewPackageRepo(pool *pgxpool.Pool) *PackageRepo {
	return &PackageRepo{pool: pool}
}

func scanPackage(row pgx.Row) (*models.Package, error) {
	p := &models.Package{}
	err := row.Scan(
		&p.ID, &p.MemberID, &p.DeviceType, &p.StartDate, &p.EndDate,
		&p.TotalSessions, &p.SessionsRemaining, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func collectPackages(rows pgx.Rows) ([]*models.Package, error) {
	defer rows.Close()

	packages := make([]*models.Package, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func (r *PackageRepo) Create(ctx context.Context, p *models.Package) error {
	p.ID = uuid.New()

	return r.pool.QueryRow(ctx, `
		INSERT INTO packages (id, member_id, device_type, start_date, end_date, total_sessions, sessions_remaining, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.MemberID, p.DeviceType, p.StartDate, p.EndDate, p.TotalSessions, p.SessionsRemaining, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PackageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	return scanPackage(r.pool.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
}

func (r *PackageRepo) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Package, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE member_id = $1
		ORDER BY is_active DESC, end_date DESC
	`, memberID)
	if err != nil {
		return nil, err
	}
	return collectPackages(rows)
}

// UseSessions debits n credits with a single conditional UPDATE and records
// the usage in the same transaction.
func (r *PackageRepo) UseSessions(ctx context.Context, id uuid.UUID, n int, notes *string, now time.Time) (*models.Package, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := debitPackage(ctx, tx, id, n, now)
	if err != nil {
		return nil, err
	}

	if err := insertUsage(ctx, tx, id, nil, n, notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func debitPackage(ctx context.Context, tx pgx.Tx, id uuid.UUID, n int, now time.Time) (*models.Package, error) {
	p, err := scanPackage(tx.QueryRow(ctx, `
		UPDATE packages
		SET sessions_remaining = sessions_remaining - $2, updated_at = NOW()
		WHERE id = $1
		  AND is_active
		  AND end_date >= $3
		  AND sessions_remaining >= $2
		RETURNING `+packageColumns, id, n, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientCredit
	}
	return p, err
}

func insertUsage(ctx context.Context, tx pgx.Tx, packageID uuid.UUID, sessionID *uuid.UUID, n int, notes *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO package_usages (id, package_id, session_id, sessions_used, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), packageID, sessionID, n, notes)
	return err
}

// Extend adds credits to an active package, optionally moving its end date.
func (r *PackageRepo) Extend(ctx context.Context, id uuid.UUID, additional int, newEndDate *time.Time) (*models.Package, error) {
	p, err := scanPackage(r.pool.QueryRow(ctx, `
		UPDATE packages
		SET total_sessions = total_sessions + $2,
		    sessions_remaining = sessions_remaining + $2,
		    end_date = COALESCE($3, end_date),
		    updated_at = NOW()
		WHERE id = $1 AND is_active
		RETURNING `+packageColumns, id, additional, newEndDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPackageInactive
	}
	return p, err
}

func (r *PackageRepo) Deactivate(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	return scanPackage(r.pool.QueryRow(ctx, `
		UPDATE packages
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+packageColumns, id))
}

func (r *PackageRepo) FindExpiring(ctx context.Context, now, until time.Time, limit int) ([]*models.Package, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE is_active
		  AND end_date >= $1
		  AND end_date <= $2
		ORDER BY end_date ASC
		LIMIT $3
	`, now, until, limit)
	if err != nil {
		return nil, err
	}
	return collectPackages(rows)
}

func (r *PackageRepo) ListUsages(ctx context.Context, packageID uuid.UUID, limit int) ([]*models.PackageUsage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, package_id, session_id, sessions_used, notes, created_at
		FROM package_usages
		WHERE package_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, packageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usages := make([]*models.PackageUsage, 0)
	for rows.Next() {
		u := &models.PackageUsage{}
		if err := rows.Scan(&u.ID, &u.PackageID, &u.SessionID, &u.SessionsUsed, &u.Notes, &u.CreatedAt); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}
