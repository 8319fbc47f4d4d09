package domain

import (
	"context"
	"time"
)

// State is the conversation's position in the submission flow.
type State string

const (
	StateUnregistered         State = "unregistered"
	StateConsentPending       State = "consent_pending"
	StateIdle                 State = "idle"
	StateDraftPending         State = "draft_pending"
	StateManagerPending       State = "manager_pending"
	StateAwaitingDenialReason State = "awaiting_denial_reason"
)

// InboundEvent is a normalized message from any channel.
type InboundEvent struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	MediaURL       string `json:"media_url,omitempty"`
	Channel        string `json:"channel,omitempty"`
}

// Submission is a photo and note that has not been captioned yet.
type Submission struct {
	ImageURL string `json:"image_url"`
	Note     string `json:"note"`
}

// Draft is an unpersisted caption candidate awaiting APPROVE, REGENERATE or CANCEL.
type Draft struct {
	ContributorID    string    `json:"contributor_id"`
	TenantID         string    `json:"tenant_id"`
	ImageURL         string    `json:"image_url"`
	Note             string    `json:"note"`
	Caption          string    `json:"caption"`
	Hashtags         []string  `json:"hashtags"`
	CallToAction     string    `json:"call_to_action"`
	BaseCaption      string    `json:"base_caption"`
	PrimaryCaption   string    `json:"primary_caption"`
	SecondaryCaption string    `json:"secondary_caption"`
	CreatedAt        time.Time `json:"created_at"`
}

type ConsentStatus string

const (
	ConsentPending ConsentStatus = "pending"
	ConsentGranted ConsentStatus = "granted"
)

// ConsentSession holds at most one queued submission; a newer one replaces it.
type ConsentSession struct {
	Status ConsentStatus `json:"status"`
	Queued *Submission   `json:"queued,omitempty"`
}

// SessionStore keeps ephemeral conversation state with a TTL.
// Getters return (nil, nil) when nothing is stored.
type SessionStore interface {
	SaveDraft(ctx context.Context, key string, draft *Draft, ttl time.Duration) error
	GetDraft(ctx context.Context, key string) (*Draft, error)
	DeleteDraft(ctx context.Context, key string) error
	SaveConsent(ctx context.Context, key string, session *ConsentSession, ttl time.Duration) error
	GetConsent(ctx context.Context, key string) (*ConsentSession, error)
	DeleteConsent(ctx context.Context, key string) error
}
