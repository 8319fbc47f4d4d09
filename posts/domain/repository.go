package domain

import (
	"context"
	"time"
)

// IPostRepository is the durable primary store for posts.
type IPostRepository interface {
	Create(ctx context.Context, post *Post) error
	Get(ctx context.Context, id string) (*Post, error)
	Update(ctx context.Context, id string, patch Patch) (*Post, error)
	// Transition applies patch and moves the post to `to` only while its status is one of from.
	// It returns (nil, false, nil) when the post has already moved on.
	Transition(ctx context.Context, id string, from []Status, to Status, patch Patch) (*Post, bool, error)

	TenantsWithScheduled(ctx context.Context) ([]string, error)
	DueForTenant(ctx context.Context, tenantID string, now time.Time) ([]*Post, error)
	Overdue(ctx context.Context, statuses []Status, now time.Time, maxRetries int) ([]*Post, error)
	FindPendingForApprover(ctx context.Context, approverID, approverContact string) (*Post, error)
	FindAwaitingReason(ctx context.Context, approverID, approverContact string) (*Post, error)
	FindLatestForContributor(ctx context.Context, contributorID string, statuses []Status) (*Post, error)
	List(ctx context.Context, filter Filter) ([]*Post, error)
}

// IOutbox exposes pending mirror events to the relay.
type IOutbox interface {
	PendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkApplied(ctx context.Context, ids []int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	// MarkDead parks an event that keeps failing so later events can proceed.
	MarkDead(ctx context.Context, id int64, reason string, at time.Time) error
	PurgeApplied(ctx context.Context, before time.Time) (int64, error)
}

// Mirror is the secondary read-optimized representation of posts.
type Mirror interface {
	Apply(ctx context.Context, post Post) error
}
