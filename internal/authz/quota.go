package authz

import (
	"context"
	"fmt"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/port/database"
)

// Gate enforces organization quotas before actions that grow membership
// count or storage usage. Quota denials carry domain.ErrQuotaExceeded,
// deliberately distinct from domain.ErrNotAuthorized.
type Gate struct {
	store database.Store
}

// NewGate creates a quota gate backed by the given store.
func NewGate(store database.Store) *Gate {
	return &Gate{store: store}
}

// CheckSeat verifies that the organization can accept one more active
// member. A max_users of zero means unlimited.
func (g *Gate) CheckSeat(ctx context.Context, organizationID string) error {
	o, err := g.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("get organization: %w", err)
	}
	if o.MaxUsers <= 0 {
		return nil
	}
	count, err := g.store.CountActiveMembers(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	if count >= o.MaxUsers {
		return fmt.Errorf("organization %s has %d of %d seats in use: %w",
			organizationID, count, o.MaxUsers, domain.ErrQuotaExceeded)
	}
	return nil
}

// CheckStorage verifies that adding addMB megabytes keeps the organization
// within its storage quota. A max_storage of zero means unlimited.
func (g *Gate) CheckStorage(ctx context.Context, organizationID string, addMB int) error {
	o, err := g.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("get organization: %w", err)
	}
	if o.MaxStorage <= 0 {
		return nil
	}
	if o.StorageMB+addMB > o.MaxStorage {
		return fmt.Errorf("organization %s storage %d+%d exceeds %d MB: %w",
			organizationID, o.StorageMB, addMB, o.MaxStorage, domain.ErrQuotaExceeded)
	}
	return nil
}
