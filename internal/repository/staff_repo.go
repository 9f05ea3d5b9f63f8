package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio-backend/internal/models"
)

type StaffRepo struct {
	pool *pgxpool.Pool
}

func NewStaffRepo(pool *pgxpool.Pool) *StaffRepo {
	return &StaffRepo{pool: pool}
}

func (r *StaffRepo) Create(ctx context.Context, staff *models.Staff) error {
	query := `
		INSERT INTO staff (id, email, password_hash, full_name, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	staff.ID = uuid.New()
	staff.IsActive = true
	if staff.Role == "" {
		staff.Role = models.RoleStaff
	}

	return r.pool.QueryRow(ctx, query,
		staff.ID, staff.Email, staff.PasswordHash, staff.FullName, staff.Role, staff.IsActive,
	).Scan(&staff.CreatedAt)
}

func (r *StaffRepo) GetByEmail(ctx context.Context, email string) (*models.Staff, error) {
	staff := &models.Staff{}
	query := `SELECT id, email, password_hash, full_name, role, is_active, created_at, last_login_at
		FROM staff WHERE email = $1`

	err := r.pool.QueryRow(ctx, query, email).Scan(
		&staff.ID, &staff.Email, &staff.PasswordHash, &staff.FullName,
		&staff.Role, &staff.IsActive, &staff.CreatedAt, &staff.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return staff, nil
}

func (r *StaffRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	staff := &models.Staff{}
	query := `SELECT id, email, password_hash, full_name, role, is_active, created_at, last_login_at
		FROM staff WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&staff.ID, &staff.Email, &staff.PasswordHash, &staff.FullName,
		&staff.Role, &staff.IsActive, &staff.CreatedAt, &staff.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return staff, nil
}

func (r *StaffRepo) UpdateLastLogin(ctx context.Context, staffID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE staff SET last_login_at = $1 WHERE id = $2", time.Now(), staffID)
	return err
}
