package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-post/pkg/timeutils"
	"github.com/AzielCF/az-post/tenants/domain"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Defaults fill in whatever a tenant record leaves blank.
type Defaults struct {
	Timezone   string
	Window     timeutils.Window
	SpacingMin int
	SpacingMax int
}

// DefaultPolicyDefaults mirrors the historical platform behaviour.
func DefaultPolicyDefaults() Defaults {
	return Defaults{
		Timezone:   "America/Indiana/Indianapolis",
		Window:     timeutils.Window{Start: timeutils.MustClock("09:00"), End: timeutils.MustClock("19:00")},
		SpacingMin: 20,
		SpacingMax: 45,
	}
}

// PolicyProvider is the read-only tenant policy lookup used by the state machine and the scheduler.
type PolicyProvider struct {
	repo     domain.ITenantRepository
	defaults Defaults
	cache    *gocache.Cache
	group    singleflight.Group
}

// NewPolicyProvider caches normalized policies for ttl. A zero ttl disables caching.
func NewPolicyProvider(repo domain.ITenantRepository, defaults Defaults, ttl time.Duration) *PolicyProvider {
	p := &PolicyProvider{repo: repo, defaults: defaults}
	if ttl > 0 {
		p.cache = gocache.New(ttl, 2*ttl)
	}
	return p
}

// Get returns a private copy of the tenant's policy.
func (p *PolicyProvider) Get(ctx context.Context, tenantID string) (*domain.TenantPolicy, error) {
	if p.cache != nil {
		if v, ok := p.cache.Get(tenantID); ok {
			return clonePolicy(v.(*domain.TenantPolicy)), nil
		}
	}

	v, err, _ := p.group.Do(tenantID, func() (interface{}, error) {
		t, err := p.repo.FindByID(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		pol, err := BuildPolicy(t, p.defaults)
		if err != nil {
			return nil, err
		}
		if p.cache != nil {
			p.cache.SetDefault(tenantID, pol)
		}
		return pol, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePolicy(v.(*domain.TenantPolicy)), nil
}

// Invalidate drops a cached policy, used after tenant administration writes.
func (p *PolicyProvider) Invalidate(tenantID string) {
	if p.cache != nil {
		p.cache.Delete(tenantID)
	}
}

// BuildPolicy normalizes a stored tenant into the typed policy, applying defaults.
func BuildPolicy(t *domain.Tenant, d Defaults) (*domain.TenantPolicy, error) {
	if t == nil {
		return nil, domain.ErrTenantNotFound
	}

	window := d.Window
	if t.PostingStart != "" {
		c, err := timeutils.ParseClock(t.PostingStart)
		if err != nil {
			return nil, fmt.Errorf("%w: posting start: %v", domain.ErrInvalidTenant, err)
		}
		window.Start = c
	}
	if t.PostingEnd != "" {
		c, err := timeutils.ParseClock(t.PostingEnd)
		if err != nil {
			return nil, fmt.Errorf("%w: posting end: %v", domain.ErrInvalidTenant, err)
		}
		window.End = c
	}

	spacingMin, spacingMax := d.SpacingMin, d.SpacingMax
	if t.SpacingMin > 0 {
		spacingMin = t.SpacingMin
	}
	if t.SpacingMax > 0 {
		spacingMax = t.SpacingMax
	}
	if spacingMax < spacingMin {
		logrus.Warnf("[POLICY] tenant %s spacing max %d below min %d, clamping", t.ID, spacingMax, spacingMin)
		spacingMax = spacingMin
	}

	return &domain.TenantPolicy{
		TenantID:        t.ID,
		Name:            t.Name,
		Location:        timeutils.LoadLocation(t.Timezone, d.Timezone),
		Window:          window,
		SpacingMin:      spacingMin,
		SpacingMax:      spacingMax,
		RequireApproval: t.RequireApproval,
		RequireConsent:  t.RequireConsent,
		Credentials: domain.PlatformCredentials{
			PageID:              strings.TrimSpace(t.FacebookPageID),
			PageToken:           strings.TrimSpace(t.FacebookPageToken),
			InstagramBusinessID: strings.TrimSpace(t.InstagramBusinessID),
		},
		InstagramHandle: strings.TrimPrefix(strings.TrimSpace(t.InstagramHandle), "@"),
		BookingURL:      strings.TrimSpace(t.BookingURL),
		DefaultHashtags: append([]string(nil), t.DefaultHashtags...),
		DefaultCTA:      t.DefaultCTA,
		Tone:            t.Tone,
	}, nil
}

func clonePolicy(p *domain.TenantPolicy) *domain.TenantPolicy {
	cp := *p
	cp.DefaultHashtags = append([]string(nil), p.DefaultHashtags...)
	return &cp
}
