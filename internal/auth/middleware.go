package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/issue-tracker/pkg/util"
)

const userIDKey = "auth_user_id"

// Middleware validates bearer access tokens. Requests authenticate purely
// by signature; no store lookup happens here, keeping the server stateless
// per request.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("Unauthorized")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("Unauthorized")
	}

	claims, err := m.tokens.ParseAccessToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("Unauthorized")
	}

	c.Locals(userIDKey, claims.UserID)
	return c.Next()
}

// UserIDFromContext retrieves the authenticated user id.
func UserIDFromContext(c *fiber.Ctx) (string, bool) {
	val := c.Locals(userIDKey)
	if val == nil {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}
