package domain

import "time"

// Post is the persisted unit of content.
type Post struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Sequence int64  `json:"sequence"`

	ContributorID      string `json:"contributor_id"`
	ContributorName    string `json:"contributor_name"`
	ContributorContact string `json:"contributor_contact"`
	ApproverID         string `json:"approver_id,omitempty"`
	ApproverContact    string `json:"approver_contact,omitempty"`

	ImageURL         string   `json:"image_url"`
	Note             string   `json:"note,omitempty"`
	BaseCaption      string   `json:"base_caption"`
	PrimaryCaption   string   `json:"primary_caption"`
	SecondaryCaption string   `json:"secondary_caption"`
	Hashtags         []string `json:"hashtags"`
	CallToAction     string   `json:"call_to_action,omitempty"`

	Status           Status     `json:"status"`
	ScheduledFor     *time.Time `json:"scheduled_for,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	RetryCount       int        `json:"retry_count"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	DeniedReason     string     `json:"denied_reason,omitempty"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	PrimaryPostID    string     `json:"primary_post_id,omitempty"`
	SecondaryMediaID string     `json:"secondary_media_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch lists the mutable columns. Nil fields are left untouched.
// ClearScheduledFor wins over ScheduledFor.
type Patch struct {
	Status            *Status
	ScheduledFor      *time.Time
	ClearScheduledFor bool
	PublishedAt       *time.Time
	RetryCount        *int
	IncrementRetry    bool
	ErrorMessage      *string
	DeniedReason      *string
	ApprovedBy        *string
	ApprovedAt        *time.Time
	ApproverID        *string
	ApproverContact   *string
	ImageURL          *string
	BaseCaption       *string
	PrimaryCaption    *string
	SecondaryCaption  *string
	Hashtags          []string
	CallToAction      *string
	PrimaryPostID     *string
	SecondaryMediaID  *string
}

// Apply mutates p in memory the same way the repository does in storage.
func (patch Patch) Apply(p *Post) {
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.ScheduledFor != nil {
		t := patch.ScheduledFor.UTC()
		p.ScheduledFor = &t
	}
	if patch.ClearScheduledFor || p.Status.IsTerminal() {
		p.ScheduledFor = nil
	}
	if patch.PublishedAt != nil {
		t := patch.PublishedAt.UTC()
		p.PublishedAt = &t
	}
	if patch.RetryCount != nil {
		p.RetryCount = *patch.RetryCount
	}
	if patch.IncrementRetry {
		p.RetryCount++
	}
	if patch.ErrorMessage != nil {
		p.ErrorMessage = *patch.ErrorMessage
	}
	if patch.DeniedReason != nil {
		p.DeniedReason = *patch.DeniedReason
	}
	if patch.ApprovedBy != nil {
		p.ApprovedBy = *patch.ApprovedBy
	}
	if patch.ApprovedAt != nil {
		t := patch.ApprovedAt.UTC()
		p.ApprovedAt = &t
	}
	if patch.ApproverID != nil {
		p.ApproverID = *patch.ApproverID
	}
	if patch.ApproverContact != nil {
		p.ApproverContact = *patch.ApproverContact
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.BaseCaption != nil {
		p.BaseCaption = *patch.BaseCaption
	}
	if patch.PrimaryCaption != nil {
		p.PrimaryCaption = *patch.PrimaryCaption
	}
	if patch.SecondaryCaption != nil {
		p.SecondaryCaption = *patch.SecondaryCaption
	}
	if patch.Hashtags != nil {
		p.Hashtags = append([]string(nil), patch.Hashtags...)
	}
	if patch.CallToAction != nil {
		p.CallToAction = *patch.CallToAction
	}
	if patch.PrimaryPostID != nil {
		p.PrimaryPostID = *patch.PrimaryPostID
	}
	if patch.SecondaryMediaID != nil {
		p.SecondaryMediaID = *patch.SecondaryMediaID
	}
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Filter narrows post listings.
type Filter struct {
	TenantID string
	Statuses []Status
	Limit    int
	Offset   int
}
