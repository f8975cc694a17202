package postgres

import (
	"context"
	"fmt"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
)

const membershipColumns = `id, user_id, organization_id, role, active, created_at, updated_at, deactivated_at`

func (s *Store) CreateMembership(ctx context.Context, m *membership.Membership) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organization_members (id, user_id, organization_id, role, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.OrganizationID, string(m.Role), m.Active,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create membership: %w", domain.ErrConflict)
		}
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, id string) (*membership.Membership, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM organization_members WHERE id = $1`, id)

	m, err := scanMembership(row)
	if err != nil {
		return nil, notFoundWrap(err, "get membership %s", id)
	}
	return &m, nil
}

func (s *Store) GetActiveMembership(ctx context.Context, userID, organizationID string) (*membership.Membership, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM organization_members
		 WHERE user_id = $1 AND organization_id = $2 AND active`, userID, organizationID)

	m, err := scanMembership(row)
	if err != nil {
		return nil, notFoundWrap(err, "get active membership")
	}
	return &m, nil
}

func (s *Store) ListActiveMembershipsForUser(ctx context.Context, userID string) ([]membership.Membership, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+membershipColumns+` FROM organization_members
		 WHERE user_id = $1 AND active ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships for user: %w", err)
	}
	defer rows.Close()

	var members []membership.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) ListMembers(ctx context.Context, organizationID string, role membership.Role) ([]membership.Membership, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+membershipColumns+` FROM organization_members
		 WHERE organization_id = $1 AND active AND ($2 = '' OR role = $2)
		 ORDER BY created_at ASC`, organizationID, string(role))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []membership.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) UpdateMembership(ctx context.Context, m *membership.Membership) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE organization_members SET role = $2, active = $3, deactivated_at = $4, updated_at = now()
		 WHERE id = $1`,
		m.ID, string(m.Role), m.Active, m.DeactivatedAt)
	return execExpectOne(tag, err, "update membership %s", m.ID)
}

func (s *Store) CountActiveMembers(ctx context.Context, organizationID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM organization_members WHERE organization_id = $1 AND active`,
		organizationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active members: %w", err)
	}
	return n, nil
}

func scanMembership(row scannable) (membership.Membership, error) {
	var m membership.Membership
	var role string
	err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &role, &m.Active, &m.CreatedAt, &m.UpdatedAt, &m.DeactivatedAt)
	m.Role = membership.Role(role)
	return m, err
}
