// Package service implements business logic over the store and queue ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/domain/user"
	"github.com/opsdesk/opsdesk/internal/port/database"
)

// ErrInvalidCredentials is returned for a wrong email/password pair without
// revealing which half was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService is the bundled identity provider: it verifies credentials,
// mints and validates access tokens, and derives the request principal. The
// authorization core consumes principals; it never touches credentials.
type AuthService struct {
	store    database.Store
	recorder *audit.Recorder
	cfg      *config.Auth
	secret   []byte
}

// claims is the JWT payload for access tokens.
type claims struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Superuser bool   `json:"su,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthService creates a new authentication service.
func NewAuthService(store database.Store, recorder *audit.Recorder, cfg *config.Auth) *AuthService {
	return &AuthService{
		store:    store,
		recorder: recorder,
		cfg:      cfg,
		secret:   []byte(cfg.JWTSecret),
	}
}

// Register creates a new user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Superuser:    req.Superuser,
		Active:       true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind: "user",
		EntityID:   u.ID,
		Kind:       activity.KindCreate,
		ChangedFields: map[string]any{
			"email":     u.Email,
			"name":      u.Name,
			"superuser": u.Superuser,
		},
	})
	return u, nil
}

// Login authenticates a user and returns an access token.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.mintToken(u)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind: "user",
		EntityID:   u.ID,
		Kind:       activity.KindLogin,
		ActorHint:  u.ID,
	})

	return &user.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
		User:        *u,
	}, nil
}

// Logout records the logout activity. Tokens are stateless; expiry is the
// only revocation.
func (s *AuthService) Logout(ctx context.Context, p *principal.Principal) {
	if p == nil {
		return
	}
	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind: "user",
		EntityID:   p.ID,
		Kind:       activity.KindLogout,
		ActorHint:  p.ID,
	})
}

// ChangePassword rotates the principal's password after verifying the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, p *principal.Principal, req user.ChangePasswordRequest) error {
	if p == nil {
		return domain.ErrNotAuthenticated
	}
	if err := req.Validate(); err != nil {
		return err
	}

	u, err := s.store.GetUser(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind: "user",
		EntityID:   u.ID,
		Kind:       activity.KindPasswordChange,
		ActorHint:  p.ID,
	})
	return nil
}

// ResetPassword sets a user's password without verifying the current one.
// Admin CLI only; never exposed over HTTP.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind: "user",
		EntityID:   u.ID,
		Kind:       activity.KindPasswordChange,
	})
	return nil
}

// ListUsers returns all users. Admin CLI only.
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// ValidateAccessToken parses and verifies a token and returns the principal
// it represents.
func (s *AuthService) ValidateAccessToken(token string) (*principal.Principal, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid || c.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return &principal.Principal{
		ID:        c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Superuser: c.Superuser,
		Active:    true,
	}, nil
}

func (s *AuthService) mintToken(u *user.User) (string, error) {
	now := time.Now()
	c := claims{
		Email:     u.Email,
		Name:      u.Name,
		Superuser: u.Superuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}
