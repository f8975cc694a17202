// Package org defines the organization (tenant) domain model.
package org

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
)

// Status is the lifecycle status of an organization.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// ValidStatuses is the set of all valid organization statuses.
var ValidStatuses = map[Status]bool{
	StatusActive:    true,
	StatusTrial:     true,
	StatusSuspended: true,
	StatusInactive:  true,
}

// Organization represents an isolated customer account. All business data is
// scoped to exactly one organization.
type Organization struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Email      string    `json:"email"`
	Status     Status    `json:"status"`
	MaxUsers   int       `json:"max_users"`
	MaxStorage int       `json:"max_storage"` // megabytes
	StorageMB  int       `json:"storage_mb"`  // current usage, megabytes
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OrgID implements the authz.Resource contract: an organization owns itself.
func (o Organization) OrgID() (string, bool) {
	return o.ID, o.ID != ""
}

// CreateRequest holds the fields required to register a new organization.
type CreateRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Email      string `json:"email"`
	MaxUsers   int    `json:"max_users,omitempty"`
	MaxStorage int    `json:"max_storage,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if r.Email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("%w: invalid email format", domain.ErrValidation)
	}
	if r.MaxUsers < 0 || r.MaxStorage < 0 {
		return fmt.Errorf("%w: quotas must not be negative", domain.ErrValidation)
	}
	return nil
}

// UpdateRequest holds the fields that can be updated on an organization.
type UpdateRequest struct {
	Name       string  `json:"name,omitempty"`
	Email      string  `json:"email,omitempty"`
	Status     *Status `json:"status,omitempty"`
	MaxUsers   *int    `json:"max_users,omitempty"`
	MaxStorage *int    `json:"max_storage,omitempty"`
}

// Validate checks that the UpdateRequest carries consistent values.
func (r *UpdateRequest) Validate() error {
	if r.Status != nil && !ValidStatuses[*r.Status] {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *r.Status)
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return fmt.Errorf("%w: invalid email format", domain.ErrValidation)
		}
	}
	if r.MaxUsers != nil && *r.MaxUsers < 0 {
		return fmt.Errorf("%w: max_users must not be negative", domain.ErrValidation)
	}
	if r.MaxStorage != nil && *r.MaxStorage < 0 {
		return fmt.Errorf("%w: max_storage must not be negative", domain.ErrValidation)
	}
	return nil
}
