package dto

import "github.com/spec-kit/issue-tracker/internal/domain"

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register, login and refresh. The refresh
// endpoint responds with an empty accessToken and no user on failure.
type AuthResponse struct {
	AccessToken string             `json:"accessToken"`
	User        *domain.PublicUser `json:"user,omitempty"`
}
