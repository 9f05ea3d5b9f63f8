package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"studio-backend/internal/middleware"
	"studio-backend/internal/models"
)

const (
	refreshTokenTTL = 7 * 24 * time.Hour
	bcryptCost      = 12
)

type staffStore interface {
	Create(ctx context.Context, staff *models.Staff) error
	GetByEmail(ctx context.Context, email string) (*models.Staff, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Staff, error)
	UpdateLastLogin(ctx context.Context, staffID uuid.UUID) error
}

type AuthService struct {
	staffRepo staffStore
	redis     *redis.Client
	jwt       *middleware.JWTAuth
	logger    *zap.Logger
}

func NewAuthService(staffRepo staffStore, redisClient *redis.Client, jwt *middleware.JWTAuth, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		staffRepo: staffRepo,
		redis:     redisClient,
		jwt:       jwt,
		logger:    logger.Named("auth"),
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type CreateStaffInput struct {
	Email    string
	Password string
	FullName string
	Role     string
}

// CreateStaff provisions a staff account. There is no self sign-up; accounts
// are created from the command line.
func (s *AuthService) CreateStaff(ctx context.Context, in CreateStaffInput) (*models.Staff, error) {
	fieldErrors := make(map[string]string)

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if strings.TrimSpace(in.FullName) == "" {
		fieldErrors["full_name"] = "Full name is required"
	}
	if !emailRegex.MatchString(in.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if err := validatePassword(in.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if in.Role == "" {
		in.Role = models.RoleStaff
	}
	if in.Role != models.RoleStaff && in.Role != models.RoleAdmin {
		fieldErrors["role"] = "Role must be admin or staff"
	}

	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Message: "Invalid staff account", Fields: fieldErrors}
	}

	_, err := s.staffRepo.GetByEmail(ctx, in.Email)
	if err == nil {
		return nil, &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	staff := &models.Staff{
		Email:        in.Email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
	}
	if err := s.staffRepo.Create(ctx, staff); err != nil {
		return nil, err
	}

	s.logger.Info("staff account created", zap.String("staff_id", staff.ID.String()), zap.String("role", staff.Role))
	return staff, nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	staff, err := s.staffRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid email or password"}
		}
		return nil, err
	}

	if !staff.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}

	if err := s.staffRepo.UpdateLastLogin(ctx, staff.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.String("staff_id", staff.ID.String()), zap.Error(err))
	}

	return s.issueTokens(ctx, staff)
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	staffIDStr, err := s.redis.Get(ctx, "refresh:"+refreshToken).Result()
	if err != nil {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}

	staffID, err := uuid.Parse(staffIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid staff ID: %w", err)
	}

	// Rotation: a refresh token is good for one exchange.
	s.redis.Del(ctx, "refresh:"+refreshToken)

	staff, err := s.staffRepo.GetByID(ctx, staffID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Account no longer exists"}
		}
		return nil, err
	}

	if !staff.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	return s.issueTokens(ctx, staff)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.redis.Del(ctx, "refresh:"+refreshToken).Err()
}

func (s *AuthService) issueTokens(ctx context.Context, staff *models.Staff) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(staff.ID, staff.Email, staff.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}

	err = s.redis.Set(ctx, "refresh:"+refreshToken, staff.ID.String(), refreshTokenTTL).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(middleware.AccessTokenTTL.Seconds()),
	}, nil
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
