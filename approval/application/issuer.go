package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AzielCF/az-post/approval/domain"
	"github.com/sirupsen/logrus"
)

const DefaultTokenTTL = 7 * 24 * time.Hour

// Issuer creates and verifies approval link credentials.
type Issuer struct {
	repo    domain.ICredentialRepository
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewIssuer(repo domain.ICredentialRepository, baseURL string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		repo:    repo,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue stores a fresh 128-bit token bound to the post and approver.
func (i *Issuer) Issue(ctx context.Context, postID, approverID, tenantID string) (*domain.Credential, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate approval token: %w", err)
	}
	now := i.now()
	cred := &domain.Credential{
		Token:      hex.EncodeToString(buf),
		PostID:     postID,
		ApproverID: approverID,
		TenantID:   tenantID,
		ExpiresAt:  now.Add(i.ttl),
		CreatedAt:  now,
	}
	if err := i.repo.Create(ctx, cred); err != nil {
		return nil, err
	}
	logrus.Debugf("[APPROVAL] issued link for post %s (expires %s)", postID, cred.ExpiresAt.Format(time.RFC3339))
	return cred, nil
}

// Verify checks the token and stamps its first use. Reuse inside the validity window is allowed
// so an approver can reopen the review page; the post transitions themselves are one-shot.
func (i *Issuer) Verify(ctx context.Context, token string) (*domain.Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrCredentialInvalid
	}
	cred, err := i.repo.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	now := i.now()
	if cred.Expired(now) {
		return nil, domain.ErrCredentialExpired
	}
	if cred.UsedAt == nil {
		if err := i.repo.MarkUsed(ctx, token, now); err != nil {
			return nil, err
		}
		cred.UsedAt = &now
	}
	return cred, nil
}

// Link builds the review URL sent to the approver.
func (i *Issuer) Link(cred *domain.Credential) string {
	return i.baseURL + "/manager/login?token=" + url.QueryEscape(cred.Token)
}

// PurgeExpired removes credentials that expired before now.
func (i *Issuer) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := i.repo.DeleteExpired(ctx, i.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logrus.Infof("[APPROVAL] purged %d expired approval links", n)
	}
	return n, nil
}
