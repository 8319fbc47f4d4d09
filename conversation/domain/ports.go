package domain

import (
	"context"
	"time"

	identity "github.com/AzielCF/az-post/identity/domain"
	tenants "github.com/AzielCF/az-post/tenants/domain"
)

// CaptionRequest is the input of a caption generator.
type CaptionRequest struct {
	ImageURL    string
	Note        string
	Policy      *tenants.TenantPolicy
	Contributor *identity.ContributorIdentity
}

// CaptionResult is what a generator returns.
type CaptionResult struct {
	Caption      string   `json:"caption"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action"`
}

type Captioner interface {
	Generate(ctx context.Context, req CaptionRequest) (CaptionResult, error)
}

type ModerationResult struct {
	Safe       bool
	Categories []string
}

type Moderator interface {
	Check(ctx context.Context, caption, note string) (ModerationResult, error)
}

// Messenger delivers plain text to a phone number or chat id.
type Messenger interface {
	SendText(ctx context.Context, to, text string) error
}

// Enqueuer hands an approved post to the scheduler and returns the planned publish time.
type Enqueuer interface {
	EnqueuePost(ctx context.Context, postID string) (time.Time, error)
}
