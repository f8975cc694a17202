package postgres

import (
	"context"
	"fmt"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/user"
)

const userColumns = `id, email, name, password_hash, superuser, active, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, password_hash, superuser, active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Superuser, u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user by email")
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET email = $2, name = $3, password_hash = $4, superuser = $5, active = $6, updated_at = now()
		 WHERE id = $1`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Superuser, u.Active)
	return execExpectOne(tag, err, "update user %s", u.ID)
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row scannable) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Superuser, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
