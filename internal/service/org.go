package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/org"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/port/database"
)

// OrgService handles organization lifecycle. Every mutation passes the
// permission resolver first and emits a change event after.
type OrgService struct {
	store    database.Store
	resolver *authz.Resolver
	gate     *authz.Gate
	recorder *audit.Recorder
}

// NewOrgService creates a new OrgService.
func NewOrgService(store database.Store, resolver *authz.Resolver, gate *authz.Gate, recorder *audit.Recorder) *OrgService {
	return &OrgService{store: store, resolver: resolver, gate: gate, recorder: recorder}
}

// Register creates an organization; the creating principal becomes its
// first admin member.
func (s *OrgService) Register(ctx context.Context, p *principal.Principal, req *org.CreateRequest) (*org.Organization, error) {
	if p == nil || !p.Active {
		return nil, domain.ErrNotAuthenticated
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o := &org.Organization{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Slug:       slugify(req.Slug, req.Name),
		Email:      req.Email,
		Status:     org.StatusTrial,
		MaxUsers:   req.MaxUsers,
		MaxStorage: req.MaxStorage,
	}
	if err := s.store.CreateOrganization(ctx, o); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}

	m := &membership.Membership{
		ID:             uuid.NewString(),
		UserID:         p.ID,
		OrganizationID: o.ID,
		Role:           membership.RoleAdmin,
		Active:         true,
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("create admin membership: %w", err)
	}
	s.resolver.InvalidateUser(ctx, p.ID, o.ID)

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind: "organization",
		EntityID:   o.ID,
		Kind:       activity.KindCreate,
		ChangedFields: map[string]any{
			"name":   o.Name,
			"slug":   o.Slug,
			"status": string(o.Status),
		},
	})
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
	return o, nil
}

// Get returns an organization the principal is a member of.
func (s *OrgService) Get(ctx context.Context, p *principal.Principal, id string) (*org.Organization, error) {
	if err := s.resolver.Authorize(ctx, p, id, membership.RoleUser); err != nil {
		return nil, err
	}
	return s.store.GetOrganization(ctx, id)
}

// List returns the organizations visible to the principal.
func (s *OrgService) List(ctx context.Context, p *principal.Principal) ([]org.Organization, error) {
	ids, restricted, err := s.resolver.OrgIDsFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if !restricted {
		return s.store.ListOrganizations(ctx)
	}
	if len(ids) == 0 {
		return []org.Organization{}, nil
	}
	return s.store.ListOrganizationsByIDs(ctx, ids)
}

// Update applies an UpdateRequest. Requires admin in the organization.
// Status and quota changes are classified as settings updates.
func (s *OrgService) Update(ctx context.Context, p *principal.Principal, id string, req org.UpdateRequest) (*org.Organization, error) {
	if err := s.resolver.Authorize(ctx, p, id, membership.RoleAdmin); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := map[string]any{}
	kind := activity.KindUpdate
	if req.Name != "" && req.Name != o.Name {
		o.Name = req.Name
		changed["name"] = req.Name
	}
	if req.Email != "" && req.Email != o.Email {
		o.Email = req.Email
		changed["email"] = req.Email
	}
	if req.Status != nil && *req.Status != o.Status {
		o.Status = *req.Status
		changed["status"] = string(*req.Status)
		kind = activity.KindSettingsUpdate
	}
	if req.MaxUsers != nil && *req.MaxUsers != o.MaxUsers {
		o.MaxUsers = *req.MaxUsers
		changed["max_users"] = *req.MaxUsers
		kind = activity.KindSettingsUpdate
	}
	if req.MaxStorage != nil && *req.MaxStorage != o.MaxStorage {
		o.MaxStorage = *req.MaxStorage
		changed["max_storage"] = *req.MaxStorage
		kind = activity.KindSettingsUpdate
	}
	if len(changed) == 0 {
		return o, nil
	}

	if err := s.store.UpdateOrganization(ctx, o); err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind:    "organization",
		EntityID:      o.ID,
		Kind:          kind,
		ChangedFields: changed,
	})
	return o, nil
}

// AddStorage reserves addMB megabytes against the organization's storage
// quota. Requires admin; over-quota requests fail with ErrQuotaExceeded.
func (s *OrgService) AddStorage(ctx context.Context, p *principal.Principal, id string, addMB int) (*org.Organization, error) {
	if err := s.resolver.Authorize(ctx, p, id, membership.RoleAdmin); err != nil {
		return nil, err
	}
	if addMB <= 0 {
		return nil, fmt.Errorf("%w: storage amount must be positive", domain.ErrValidation)
	}
	if err := s.gate.CheckStorage(ctx, id, addMB); err != nil {
		return nil, err
	}

	o, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	o.StorageMB += addMB
	if err := s.store.UpdateOrganization(ctx, o); err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}

	s.recorder.Record(ctx, activity.ChangeEvent{
		EntityKind:    "organization",
		EntityID:      o.ID,
		Kind:          activity.KindSettingsUpdate,
		ChangedFields: map[string]any{"storage_mb": o.StorageMB},
	})
	return o, nil
}

// slugify derives a slug from the explicit value or the name.
func slugify(slug, name string) string {
	src := slug
	if src == "" {
		src = name
	}
	out := make([]rune, 0, len(src))
	for _, r := range src {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ', r == '-', r == '_':
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
