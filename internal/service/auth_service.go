package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/persistence"
	"github.com/spec-kit/issue-tracker/internal/ratelimit"
	"github.com/spec-kit/issue-tracker/internal/repository"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

const minPasswordLength = 8

// AuthService coordinates registration, login and session refresh.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	limiter    ratelimit.Limiter
	bcryptCost int
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Limiter  ratelimit.Limiter
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth),
		limiter:    deps.Limiter,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Session bundles what a successful authentication returns.
type Session struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// Register creates a new account and logs it in immediately, returning
// tokens exactly as Login does.
func (s *AuthService) Register(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("Validation failed", map[string]any{"email": "Invalid email format"})
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.NewValidationError("Validation failed", map[string]any{"password": fmt.Sprintf("Password must be at least %d characters", minPasswordLength)})
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewDuplicateEmail()
	} else if err != pgx.ErrNoRows {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		// concurrent registration races resolve at the unique index
		if persistence.IsUniqueViolation(err) {
			return nil, apperrors.NewDuplicateEmail()
		}
		return nil, apperrors.NewInternalError(err)
	}

	return s.startSession(user)
}

// Login authenticates an account. Lookup misses and hash mismatches are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, email)
		if err == nil && !allowed {
			return nil, apperrors.NewRateLimited(fmt.Sprintf("Too many failed attempts, retry in %s", retryAfter.Round(time.Second)))
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if err == pgx.ErrNoRows {
			s.recordFailure(ctx, email)
			return nil, apperrors.NewInvalidCredentials()
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordFailure(ctx, email)
		return nil, apperrors.NewInvalidCredentials()
	}

	if s.limiter != nil {
		_ = s.limiter.Success(ctx, email)
	}
	return s.startSession(user)
}

// Refresh verifies the refresh token and mints a fresh access token. The
// refresh token itself is not rotated. Every failure mode reads as
// unauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.User, string, error) {
	claims, err := s.tokenMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, "", apperrors.NewUnauthorized("Unauthorized")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, "", apperrors.NewUnauthorized("Unauthorized")
	}

	accessToken, _, err := s.tokenMgr.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, "", apperrors.NewInternalError(err)
	}
	return user, accessToken, nil
}

// Me returns the caller's own profile.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewUnauthorized("Unauthorized")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware and
// cookie wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) startSession(user *domain.User) (*Session, error) {
	accessToken, _, err := s.tokenMgr.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refreshToken, _, err := s.tokenMgr.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if s.limiter != nil {
		_ = s.limiter.Failure(ctx, email)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
