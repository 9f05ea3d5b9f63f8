package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studio-backend/internal/models"
)

type memberStore interface {
	Create(ctx context.Context, m *models.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

type MemberService struct {
	members memberStore
}

func NewMemberService(members memberStore) *MemberService {
	return &MemberService{members: members}
}

func (s *MemberService) Create(ctx context.Context, req models.CreateMemberRequest) (*models.Member, error) {
	fields := make(map[string]string)

	name := strings.TrimSpace(req.FullName)
	if name == "" {
		fields["full_name"] = "Full name is required"
	}
	if req.Email != nil && *req.Email != "" && !emailRegex.MatchString(*req.Email) {
		fields["email"] = "Invalid email format"
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Message: "Invalid member", Fields: fields}
	}

	member := &models.Member{FullName: name, Email: req.Email, Phone: req.Phone}
	if err := s.members.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *MemberService) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Member not found"}
		}
		return nil, err
	}
	return member, nil
}
