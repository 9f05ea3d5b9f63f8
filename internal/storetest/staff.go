package storetest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studio-backend/internal/models"
)

type Staff struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*models.Staff
	logins int
}

func NewStaff() *Staff {
	return &Staff{byID: make(map[uuid.UUID]*models.Staff)}
}

func (f *Staff) Create(ctx context.Context, s *models.Staff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.New()
	s.IsActive = true
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *Staff) GetByEmail(ctx context.Context, email string) (*models.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.Email == email {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *Staff) GetByID(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *Staff) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return nil
}

func (f *Staff) SetActive(id uuid.UUID, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byID[id]; ok {
		s.IsActive = active
	}
}

// Logins counts UpdateLastLogin calls.
func (f *Staff) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}
