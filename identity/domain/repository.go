package domain

import (
	"context"
	"time"
)

// IIdentityRepository persists contributors and approvers.
type IIdentityRepository interface {
	Create(ctx context.Context, identity *ContributorIdentity) error
	GetByID(ctx context.Context, id string) (*ContributorIdentity, error)
	// GetByContact matches a normalized phone number or a chat id.
	GetByContact(ctx context.Context, contact string) (*ContributorIdentity, error)
	FirstApprover(ctx context.Context, tenantID string) (*ContributorIdentity, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*ContributorIdentity, error)
	MarkConsent(ctx context.Context, id string, at time.Time) error
}
