package postgres

import (
	"context"
	"fmt"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/org"
)

const orgColumns = `id, name, slug, email, status, max_users, max_storage, storage_mb, created_at, updated_at`

func (s *Store) CreateOrganization(ctx context.Context, o *org.Organization) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (id, name, slug, email, status, max_users, max_storage, storage_mb)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		o.ID, o.Name, o.Slug, o.Email, string(o.Status), o.MaxUsers, o.MaxStorage, o.StorageMB,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create organization %s: %w", o.Slug, domain.ErrConflict)
		}
		return fmt.Errorf("create organization %s: %w", o.Slug, err)
	}
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*org.Organization, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)

	o, err := scanOrganization(row)
	if err != nil {
		return nil, notFoundWrap(err, "get organization %s", id)
	}
	return &o, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]org.Organization, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orgColumns+` FROM organizations ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []org.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *Store) ListOrganizationsByIDs(ctx context.Context, ids []string) ([]org.Organization, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ANY($1) ORDER BY created_at DESC`, ids)
	if err != nil {
		return nil, fmt.Errorf("list organizations by ids: %w", err)
	}
	defer rows.Close()

	var orgs []org.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *Store) UpdateOrganization(ctx context.Context, o *org.Organization) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE organizations SET name = $2, email = $3, status = $4, max_users = $5, max_storage = $6, storage_mb = $7, updated_at = now()
		 WHERE id = $1`,
		o.ID, o.Name, o.Email, string(o.Status), o.MaxUsers, o.MaxStorage, o.StorageMB)
	return execExpectOne(tag, err, "update organization %s", o.ID)
}

func scanOrganization(row scannable) (org.Organization, error) {
	var o org.Organization
	var status string
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Email, &status, &o.MaxUsers, &o.MaxStorage, &o.StorageMB, &o.CreatedAt, &o.UpdatedAt)
	o.Status = org.Status(status)
	return o, err
}
