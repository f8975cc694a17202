package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/port/database"
)

// MemberService manages organization memberships: the only writer of the
// membership relation. The resolver reads it, never writes it.
type MemberService struct {
	store    database.Store
	resolver *authz.Resolver
	gate     *authz.Gate
	recorder *audit.Recorder
}

// NewMemberService creates a new MemberService.
func NewMemberService(store database.Store, resolver *authz.Resolver, gate *authz.Gate, recorder *audit.Recorder) *MemberService {
	return &MemberService{store: store, resolver: resolver, gate: gate, recorder: recorder}
}

// Add creates an active membership. Requires admin in the organization and
// a free seat under the organization's max_users quota.
func (s *MemberService) Add(ctx context.Context, p *principal.Principal, organizationID string, req *membership.CreateRequest) (*membership.Membership, error) {
	if err := s.resolver.Authorize(ctx, p, organizationID, membership.RoleAdmin); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.gate.CheckSeat(ctx, organizationID); err != nil {
		return nil, err
	}

	m := &membership.Membership{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		OrganizationID: organizationID,
		Role:           req.Role,
		Active:         true,
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("create membership: %w", err)
	}
	s.resolver.InvalidateUser(ctx, m.UserID, organizationID)

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind: "organization_member",
		EntityID:   m.ID,
		Kind:       activity.KindCreate,
		ChangedFields: map[string]any{
			"user_id":         m.UserID,
			"organization_id": m.OrganizationID,
			"role":            string(m.Role),
		},
	})
	return m, nil
}

// Update changes a member's role or active flag. Requires admin.
// Reactivating a previously deactivated member re-checks the seat quota.
func (s *MemberService) Update(ctx context.Context, p *principal.Principal, organizationID, memberID string, req membership.UpdateRequest) (*membership.Membership, error) {
	if err := s.resolver.Authorize(ctx, p, organizationID, membership.RoleAdmin); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m, err := s.getMember(ctx, organizationID, memberID)
	if err != nil {
		return nil, err
	}

	changed := map[string]any{}
	if req.Role != "" && req.Role != m.Role {
		m.Role = req.Role
		changed["role"] = string(req.Role)
	}
	if req.Active != nil && *req.Active != m.Active {
		if *req.Active {
			if err := s.gate.CheckSeat(ctx, organizationID); err != nil {
				return nil, err
			}
			m.DeactivatedAt = nil
		} else {
			now := time.Now().UTC()
			m.DeactivatedAt = &now
		}
		m.Active = *req.Active
		changed["active"] = *req.Active
	}
	if len(changed) == 0 {
		return m, nil
	}

	if err := s.store.UpdateMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("update membership: %w", err)
	}
	s.resolver.InvalidateUser(ctx, m.UserID, organizationID)

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind:    "organization_member",
		EntityID:      m.ID,
		Kind:          activity.KindUpdate,
		ChangedFields: changed,
	})
	return m, nil
}

// Deactivate soft-removes a member. The row is retained for history;
// memberships are never hard-deleted.
func (s *MemberService) Deactivate(ctx context.Context, p *principal.Principal, organizationID, memberID string) error {
	if err := s.resolver.Authorize(ctx, p, organizationID, membership.RoleAdmin); err != nil {
		return err
	}

	m, err := s.getMember(ctx, organizationID, memberID)
	if err != nil {
		return err
	}
	if !m.Active {
		return nil
	}

	now := time.Now().UTC()
	m.Active = false
	m.DeactivatedAt = &now
	if err := s.store.UpdateMembership(ctx, m); err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	s.resolver.InvalidateUser(ctx, m.UserID, organizationID)

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind:    "organization_member",
		EntityID:      m.ID,
		Kind:          activity.KindDelete,
		ChangedFields: map[string]any{"user_id": m.UserID, "active": false},
	})
	return nil
}

// List returns the organization's active members, optionally restricted to
// one role. Any member may list; the caller needs no particular role.
func (s *MemberService) List(ctx context.Context, p *principal.Principal, organizationID string, role membership.Role) ([]membership.Membership, error) {
	if err := s.resolver.Authorize(ctx, p, organizationID, membership.RoleUser); err != nil {
		return nil, err
	}
	if role != "" && !membership.Valid(role) {
		return nil, fmt.Errorf("%w: invalid role %q", domain.ErrValidation, role)
	}
	return s.store.ListMembers(ctx, organizationID, role)
}

// getMember loads a membership and verifies it belongs to the organization.
func (s *MemberService) getMember(ctx context.Context, organizationID, memberID string) (*membership.Membership, error) {
	m, err := s.store.GetMembership(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m.OrganizationID != organizationID {
		return nil, fmt.Errorf("membership %s in organization %s: %w", memberID, organizationID, domain.ErrNotFound)
	}
	return m, nil
}
