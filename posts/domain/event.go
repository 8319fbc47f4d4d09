package domain

import "time"

// EventKind describes what happened to a post.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// Event is an outbox record written in the same transaction as the post change.
// The relay applies it to the read mirror and stamps AppliedAt.
type Event struct {
	ID        int64      `json:"id"`
	PostID    string     `json:"post_id"`
	TenantID  string     `json:"tenant_id"`
	Kind      EventKind  `json:"kind"`
	Snapshot  Post       `json:"snapshot"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	DeadAt    *time.Time `json:"dead_at,omitempty"`
}
