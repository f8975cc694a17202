// Package user defines the identity model consumed by the auth middleware.
// Credential verification lives in service.AuthService; the authorization
// core only ever sees the derived principal.
package user

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
)

// User is a registered identity. Organization roles are not stored here;
// they live in the membership relation.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialized
	Superuser    bool      `json:"superuser"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRequest is the input for registering a new user.
type CreateRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Password  string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	Superuser bool   `json:"superuser,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("%w: invalid email format", domain.ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}
	return nil
}

// LoginRequest is the input for user authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if r.Email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	return nil
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // response field, not a hardcoded secret
	ExpiresIn   int    `json:"expires_in"`   // seconds until the access token expires
	User        User   `json:"user"`
}

// ChangePasswordRequest is the input for rotating a password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate checks that the ChangePasswordRequest has all required fields.
func (r *ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" {
		return fmt.Errorf("%w: current_password is required", domain.ErrValidation)
	}
	if len(r.NewPassword) < 8 {
		return fmt.Errorf("%w: new password must be at least 8 characters", domain.ErrValidation)
	}
	return nil
}
