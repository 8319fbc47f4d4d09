package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-post/identity/domain"
	"github.com/AzielCF/az-post/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Resolver maps conversation identifiers to contributor or approver identities.
type Resolver struct {
	repo domain.IIdentityRepository
	now  func() time.Time
}

func NewResolver(repo domain.IIdentityRepository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// Resolve looks up the identity behind a conversation id (phone, whatsapp:+phone, JID or chat id).
func (r *Resolver) Resolve(ctx context.Context, conversationID string) (*domain.ContributorIdentity, error) {
	contact := utils.NormalizeContact(conversationID)
	identity, err := r.repo.GetByContact(ctx, contact)
	if err != nil && !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, err
	}

	// Fallback: chat ids are stored verbatim
	if identity == nil && contact != strings.TrimSpace(conversationID) {
		identity, err = r.repo.GetByContact(ctx, strings.TrimSpace(conversationID))
		if err != nil && !errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, err
		}
	}

	if identity == nil {
		logrus.Debugf("[RESOLVER] no identity for %s", conversationID)
		return nil, domain.ErrIdentityNotFound
	}
	return identity, nil
}

// ApproverForTenant returns the tenant's approver, failing when nobody can receive approval requests.
func (r *Resolver) ApproverForTenant(ctx context.Context, tenantID string) (*domain.ContributorIdentity, error) {
	approver, err := r.repo.FirstApprover(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !approver.Reachable() {
		logrus.Warnf("[RESOLVER] approver %s of tenant %s has no delivery method", approver.ID, tenantID)
		return approver, domain.ErrApproverUnreachable
	}
	return approver, nil
}

// GetByID loads an identity directly.
func (r *Resolver) GetByID(ctx context.Context, id string) (*domain.ContributorIdentity, error) {
	return r.repo.GetByID(ctx, id)
}

// GrantConsent persists a contributor's opt-in.
func (r *Resolver) GrantConsent(ctx context.Context, identity *domain.ContributorIdentity) error {
	at := r.now().UTC()
	if err := r.repo.MarkConsent(ctx, identity.ID, at); err != nil {
		return fmt.Errorf("persist consent for %s: %w", identity.ID, err)
	}
	identity.ConsentGranted = true
	identity.ConsentAt = &at
	logrus.Infof("[RESOLVER] consent recorded for %s (%s)", identity.DisplayName(), identity.ID)
	return nil
}

// Enroll registers a new contributor under the approver's tenant.
// Enrolling an already registered phone returns the existing identity.
func (r *Resolver) Enroll(ctx context.Context, approver *domain.ContributorIdentity, phone, name string) (*domain.ContributorIdentity, bool, error) {
	if !approver.IsApprover() {
		return nil, false, domain.ErrNotApprover
	}
	contact := utils.NormalizeContact(phone)
	if len(contact) < 8 || !strings.HasPrefix(contact, "+") {
		return nil, false, fmt.Errorf("invalid phone number %q", phone)
	}

	existing, err := r.repo.GetByContact(ctx, contact)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, false, err
	}

	identity := &domain.ContributorIdentity{
		TenantID: approver.TenantID,
		Name:     strings.TrimSpace(name),
		Phone:    contact,
		Role:     domain.RoleContributor,
	}
	if err := r.repo.Create(ctx, identity); err != nil {
		return nil, false, err
	}
	logrus.Infof("[RESOLVER] %s enrolled %s (%s) into tenant %s", approver.DisplayName(), identity.DisplayName(), contact, approver.TenantID)
	return identity, true, nil
}
