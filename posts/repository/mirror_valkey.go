package repository

import (
	"context"

	"github.com/AzielCF/az-post/infrastructure/valkey"
	"github.com/AzielCF/az-post/posts/domain"
)

// ValkeyMirror stores each post snapshot as JSON and indexes it per tenant in a sorted set
// scored by sequence number.
type ValkeyMirror struct {
	client *valkey.Client
}

func NewValkeyMirror(client *valkey.Client) *ValkeyMirror {
	return &ValkeyMirror{client: client}
}

func (m *ValkeyMirror) postKey(id string) string {
	return m.client.Key("post", id)
}

func (m *ValkeyMirror) tenantKey(tenantID string) string {
	return m.client.Key("tenant", tenantID, "posts")
}

func (m *ValkeyMirror) Apply(ctx context.Context, post domain.Post) error {
	var existing domain.Post
	found, err := m.client.GetJSON(ctx, m.postKey(post.ID), &existing)
	if err != nil {
		return err
	}
	if found && existing.UpdatedAt.After(post.UpdatedAt) {
		return nil
	}
	if err := m.client.SetJSON(ctx, m.postKey(post.ID), post, 0); err != nil {
		return err
	}

	inner := m.client.Inner()
	cmd := inner.B().Zadd().Key(m.tenantKey(post.TenantID)).ScoreMember().
		ScoreMember(float64(post.Sequence), post.ID).Build()
	return inner.Do(ctx, cmd).Error()
}

// Get returns the mirrored snapshot of one post.
func (m *ValkeyMirror) Get(ctx context.Context, id string) (*domain.Post, error) {
	var p domain.Post
	found, err := m.client.GetJSON(ctx, m.postKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrPostNotFound
	}
	return &p, nil
}

// TenantPostIDs lists mirrored post ids of a tenant in sequence order.
func (m *ValkeyMirror) TenantPostIDs(ctx context.Context, tenantID string) ([]string, error) {
	inner := m.client.Inner()
	cmd := inner.B().Zrange().Key(m.tenantKey(tenantID)).Min("0").Max("-1").Build()
	return inner.Do(ctx, cmd).AsStrSlice()
}
