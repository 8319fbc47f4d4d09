package domain

import (
	"context"
	"time"
)

// Credential is a one-time link token that lets an approver act on a post from the browser.
type Credential struct {
	Token      string     `json:"token"`
	PostID     string     `json:"post_id"`
	ApproverID string     `json:"approver_id"`
	TenantID   string     `json:"tenant_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the credential can no longer be used at t.
func (c *Credential) Expired(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

type ICredentialRepository interface {
	Create(ctx context.Context, cred *Credential) error
	Get(ctx context.Context, token string) (*Credential, error)
	MarkUsed(ctx context.Context, token string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
