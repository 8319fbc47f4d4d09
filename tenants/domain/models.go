package domain

import (
	"time"

	"github.com/AzielCF/az-post/pkg/timeutils"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Tenant is the stored tenant record, as administered outside the engine.
// Zero values mean "use the platform default".
type Tenant struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Timezone            string    `json:"timezone,omitempty"`
	PostingStart        string    `json:"posting_start,omitempty"`
	PostingEnd          string    `json:"posting_end,omitempty"`
	SpacingMin          int       `json:"spacing_min,omitempty"`
	SpacingMax          int       `json:"spacing_max,omitempty"`
	RequireApproval     bool      `json:"require_approval"`
	RequireConsent      bool      `json:"require_consent"`
	FacebookPageID      string    `json:"facebook_page_id,omitempty"`
	FacebookPageToken   string    `json:"-"`
	InstagramBusinessID string    `json:"instagram_business_id,omitempty"`
	InstagramHandle     string    `json:"instagram_handle,omitempty"`
	BookingURL          string    `json:"booking_url,omitempty"`
	DefaultHashtags     []string  `json:"default_hashtags,omitempty"`
	DefaultCTA          string    `json:"default_cta,omitempty"`
	Tone                string    `json:"tone,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func clockRule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := timeutils.ParseClock(s)
	return err
}

func zoneRule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := time.LoadLocation(s)
	return err
}

// Validate checks the administrable fields.
func (t Tenant) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&t.Timezone, validation.By(zoneRule)),
		validation.Field(&t.PostingStart, validation.By(clockRule)),
		validation.Field(&t.PostingEnd, validation.By(clockRule)),
		validation.Field(&t.SpacingMin, validation.Min(0)),
		validation.Field(&t.SpacingMax, validation.Min(t.SpacingMin)),
		validation.Field(&t.BookingURL, is.URL),
	)
}

// PlatformCredentials holds what the two publishers need.
type PlatformCredentials struct {
	PageID              string `json:"page_id"`
	PageToken           string `json:"-"`
	InstagramBusinessID string `json:"instagram_business_id"`
}

// HasPrimary reports whether the Facebook page can be published to.
func (c PlatformCredentials) HasPrimary() bool {
	return c.PageID != "" && c.PageToken != ""
}

// HasSecondary reports whether the Instagram account can be published to.
// Instagram publishing reuses the page token.
func (c PlatformCredentials) HasSecondary() bool {
	return c.InstagramBusinessID != "" && c.PageToken != ""
}

// TenantPolicy is the normalized, read-only view of a tenant consumed by the engine.
// Callers must not mutate it; the provider hands out copies.
type TenantPolicy struct {
	TenantID        string
	Name            string
	Location        *time.Location
	Window          timeutils.Window
	SpacingMin      int
	SpacingMax      int
	RequireApproval bool
	RequireConsent  bool
	Credentials     PlatformCredentials
	InstagramHandle string
	BookingURL      string
	DefaultHashtags []string
	DefaultCTA      string
	Tone            string
}

// LocalTime converts an instant to the tenant's zone.
func (p *TenantPolicy) LocalTime(t time.Time) time.Time {
	if p.Location == nil {
		return t.UTC()
	}
	return t.In(p.Location)
}

// InWindow reports whether publishing is allowed at instant t.
func (p *TenantPolicy) InWindow(t time.Time) bool {
	return p.Window.Contains(p.LocalTime(t))
}
