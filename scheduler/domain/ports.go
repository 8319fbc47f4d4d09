package domain

import (
	"context"
	"errors"
	"time"

	tenants "github.com/AzielCF/az-post/tenants/domain"
)

var (
	// ErrPlatformCredentialMissing parks a post until an operator fixes the tenant and retries it.
	ErrPlatformCredentialMissing = errors.New("facebook credentials missing")
	ErrNotRetryable              = errors.New("post is not in a retryable state")
)

// PrimaryPublisher posts to the tenant's Facebook page.
type PrimaryPublisher interface {
	PublishPhoto(ctx context.Context, creds tenants.PlatformCredentials, caption, imageURL string) (string, error)
}

// SecondaryPublisher posts to the tenant's Instagram business account.
type SecondaryPublisher interface {
	Publish(ctx context.Context, igBusinessID, token, caption, imageURL string) (string, error)
}

// Rehoster turns a private media url into a publicly fetchable one.
type Rehoster interface {
	Rehost(ctx context.Context, url, tenantID string) (string, error)
}

type Notifier interface {
	SendText(ctx context.Context, to, text string) error
}

type PolicySource interface {
	Get(ctx context.Context, tenantID string) (*tenants.TenantPolicy, error)
}

// Lease is a held distributed lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out cross-process leases. A nil lease with nil error means somebody else holds it.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}
