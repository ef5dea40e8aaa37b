package domain

import "time"

// User is the domain model for account holders. Email is stored lowercase
// and is unique.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the owner-visible projection returned by auth endpoints.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Public strips credential material from the user.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}
