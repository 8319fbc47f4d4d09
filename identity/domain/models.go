package domain

import (
	"strings"
	"time"
)

// Role distinguishes people who submit content from people who review it.
type Role string

const (
	RoleContributor Role = "contributor"
	RoleApprover    Role = "approver"
)

// ContributorIdentity is the single typed shape for anyone talking to the engine.
type ContributorIdentity struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Name            string     `json:"name"`
	InstagramHandle string     `json:"instagram_handle,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	ChatID          string     `json:"chat_id,omitempty"`
	Role            Role       `json:"role"`
	ConsentGranted  bool       `json:"consent_granted"`
	ConsentAt       *time.Time `json:"consent_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DisplayName is what goes on the credit line.
func (c *ContributorIdentity) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return "Unknown Stylist"
}

// Handle returns the Instagram handle without the leading @.
func (c *ContributorIdentity) Handle() string {
	return strings.TrimLeft(strings.TrimSpace(c.InstagramHandle), "@")
}

// Contact is the preferred address for outbound messages.
func (c *ContributorIdentity) Contact() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.ChatID
}

// Reachable reports whether messages can be delivered at all.
func (c *ContributorIdentity) Reachable() bool {
	return c.Contact() != ""
}

func (c *ContributorIdentity) IsApprover() bool {
	return c.Role == RoleApprover
}

// Matches reports whether a normalized conversation id addresses this identity.
func (c *ContributorIdentity) Matches(contact string) bool {
	return contact != "" && (contact == c.Phone || contact == c.ChatID)
}
