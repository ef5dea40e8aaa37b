package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/issue-tracker/internal/config"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// signing method, expiry, malformed claims. Callers surface all of them
// identically as unauthorized.
var ErrInvalidToken = errors.New("invalid token")

// TokenManager issues and verifies the two JWT kinds. Access tokens are
// short-lived and sent per request; refresh tokens are long-lived,
// cookie-bound and signed with an independent secret.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenManager builds a manager from auth configuration.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	accessTTL := cfg.AccessTokenTTL()
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTokenTTL()
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// Claims describes the JWT payload carried by both token kinds.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a short-lived token for the user.
func (tm *TokenManager) GenerateAccessToken(userID string) (string, time.Time, error) {
	return sign(userID, tm.accessSecret, tm.accessTTL)
}

// GenerateRefreshToken signs a long-lived token for the user.
func (tm *TokenManager) GenerateRefreshToken(userID string) (string, time.Time, error) {
	return sign(userID, tm.refreshSecret, tm.refreshTTL)
}

// ParseAccessToken validates an access token and returns its claims.
func (tm *TokenManager) ParseAccessToken(tokenStr string) (*Claims, error) {
	return parse(tokenStr, tm.accessSecret)
}

// ParseRefreshToken validates a refresh token and returns its claims.
func (tm *TokenManager) ParseRefreshToken(tokenStr string) (*Claims, error) {
	return parse(tokenStr, tm.refreshSecret)
}

// RefreshTTL exposes the refresh lifetime for cookie max-age.
func (tm *TokenManager) RefreshTTL() time.Duration {
	return tm.refreshTTL
}

func sign(userID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(ttl)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

func parse(tokenStr string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
