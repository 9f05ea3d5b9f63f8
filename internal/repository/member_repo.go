package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio-backend/internal/models"
)

type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func (r *MemberRepo) Create(ctx context.Context, m *models.Member) error {
	m.ID = uuid.New()

	return r.pool.QueryRow(ctx, `
		INSERT INTO members (id, full_name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, m.ID, m.FullName, m.Email, m.Phone).Scan(&m.CreatedAt)
}

func (r *MemberRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	m := &models.Member{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, full_name, email, phone, created_at
		FROM members WHERE id = $1
	`, id).Scan(&m.ID, &m.FullName, &m.Email, &m.Phone, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MemberRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
