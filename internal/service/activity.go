package service

import (
	"context"
	"fmt"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/port/auditstore"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ActivityService is the read-only query surface over the audit store.
// Only superusers may query it; the store itself stays append-only.
type ActivityService struct {
	store auditstore.Store
}

// NewActivityService creates a new ActivityService.
func NewActivityService(store auditstore.Store) *ActivityService {
	return &ActivityService{store: store}
}

// List returns audit entries matching the filter, newest first.
func (s *ActivityService) List(ctx context.Context, p *principal.Principal, f activity.Filter) ([]activity.Entry, error) {
	if err := requireSuperuser(p); err != nil {
		return nil, err
	}
	if f.Kind != "" && !activity.ValidKinds[f.Kind] {
		return nil, fmt.Errorf("%w: unknown activity kind %q", domain.ErrValidation, f.Kind)
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	entries, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	return entries, nil
}

// Recent returns the latest entries for the dashboard.
func (s *ActivityService) Recent(ctx context.Context, p *principal.Principal, limit int) ([]activity.Entry, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}
	return s.List(ctx, p, activity.Filter{Limit: limit})
}

// Summary returns aggregate statistics over the last seven days.
func (s *ActivityService) Summary(ctx context.Context, p *principal.Principal) (*activity.Summary, error) {
	if err := requireSuperuser(p); err != nil {
		return nil, err
	}
	sum, err := s.store.Summarize(ctx, 7)
	if err != nil {
		return nil, fmt.Errorf("summarize activity: %w", err)
	}
	return sum, nil
}

func requireSuperuser(p *principal.Principal) error {
	if p == nil || p.ID == "" {
		return domain.ErrNotAuthenticated
	}
	if !p.Active {
		return fmt.Errorf("principal %s is inactive: %w", p.ID, domain.ErrNotAuthenticated)
	}
	if !p.Superuser {
		return fmt.Errorf("audit log is restricted to superusers: %w", domain.ErrNotAuthorized)
	}
	return nil
}
