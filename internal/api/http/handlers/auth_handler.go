package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/api/dto"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/service"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/api/auth/refresh"
)

// AuthHandler exposes session endpoints.
type AuthHandler struct {
	auth         *service.AuthService
	secureCookie bool
}

// NewAuthHandler constructs handler. secureCookie marks refresh cookies
// Secure, which production config enables.
func NewAuthHandler(authService *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: authService, secureCookie: secureCookie}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.auth.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return c.Status(http.StatusCreated).JSON(authResponse(session))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("Validation failed", map[string]any{"email": "email and password required"})
	}

	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return c.JSON(authResponse(session))
}

// Refresh handles POST /api/auth/refresh. Every failure mode answers 401
// with an empty accessToken so callers re-authenticate uniformly.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	token := c.Cookies(refreshCookieName)
	if token == "" {
		return unauthorizedRefresh(c)
	}

	user, accessToken, err := h.auth.Refresh(c.UserContext(), token)
	if err != nil {
		return unauthorizedRefresh(c)
	}

	pub := user.Public()
	return c.JSON(dto.AuthResponse{AccessToken: accessToken, User: &pub})
}

// Logout handles POST /api/auth/logout. Idempotent; always succeeds.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Unauthorized")
	}
	user, err := h.auth.Me(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(user.Public())
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  time.Now().Add(h.auth.TokenManager().RefreshTTL()),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func unauthorizedRefresh(c *fiber.Ctx) error {
	return c.Status(http.StatusUnauthorized).JSON(dto.AuthResponse{AccessToken: ""})
}

func authResponse(session *service.Session) dto.AuthResponse {
	pub := session.User.Public()
	return dto.AuthResponse{AccessToken: session.AccessToken, User: &pub}
}
