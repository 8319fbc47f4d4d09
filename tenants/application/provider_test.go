package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-post/pkg/timeutils"
	"github.com/AzielCF/az-post/tenants/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTenantRepo struct {
	tenants map[string]*domain.Tenant
	loads   atomic.Int32
}

func (f *fakeTenantRepo) Save(_ context.Context, t *domain.Tenant) error {
	f.tenants[t.ID] = t
	return nil
}

func (f *fakeTenantRepo) FindByID(_ context.Context, id string) (*domain.Tenant, error) {
	f.loads.Add(1)
	t, ok := f.tenants[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	return t, nil
}

func (f *fakeTenantRepo) List(context.Context) ([]*domain.Tenant, error) { return nil, nil }

func TestBuildPolicyAppliesDefaults(t *testing.T) {
	pol, err := BuildPolicy(&domain.Tenant{ID: "t1", InstagramHandle: " @studio.k "}, DefaultPolicyDefaults())
	require.NoError(t, err)

	assert.Equal(t, "America/Indiana/Indianapolis", pol.Location.String())
	assert.Equal(t, "09:00-19:00", pol.Window.String())
	assert.Equal(t, 20, pol.SpacingMin)
	assert.Equal(t, 45, pol.SpacingMax)
	assert.Equal(t, "studio.k", pol.InstagramHandle)
	assert.False(t, pol.Credentials.HasPrimary())
}

func TestBuildPolicyOverrides(t *testing.T) {
	pol, err := BuildPolicy(&domain.Tenant{
		ID:                "t1",
		Timezone:          "Europe/Madrid",
		PostingStart:      "10:15",
		PostingEnd:        "16:45",
		SpacingMin:        5,
		SpacingMax:        9,
		FacebookPageID:    "p",
		FacebookPageToken: "tok",
	}, DefaultPolicyDefaults())
	require.NoError(t, err)

	assert.Equal(t, "Europe/Madrid", pol.Location.String())
	assert.Equal(t, timeutils.Window{Start: timeutils.MustClock("10:15"), End: timeutils.MustClock("16:45")}, pol.Window)
	assert.Equal(t, 5, pol.SpacingMin)
	assert.Equal(t, 9, pol.SpacingMax)
	assert.True(t, pol.Credentials.HasPrimary())
	assert.False(t, pol.Credentials.HasSecondary())
}

func TestBuildPolicyRejectsBadClock(t *testing.T) {
	_, err := BuildPolicy(&domain.Tenant{ID: "t1", PostingEnd: "7pm"}, DefaultPolicyDefaults())
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}

func TestPolicyProviderCachesAndInvalidates(t *testing.T) {
	repo := &fakeTenantRepo{tenants: map[string]*domain.Tenant{"t1": {ID: "t1", Name: "One"}}}
	p := NewPolicyProvider(repo, DefaultPolicyDefaults(), time.Minute)
	ctx := context.Background()

	first, err := p.Get(ctx, "t1")
	require.NoError(t, err)
	first.Name = "mutated by caller"

	second, err := p.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "One", second.Name, "callers get copies")
	assert.Equal(t, int32(1), repo.loads.Load())

	p.Invalidate("t1")
	_, err = p.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load())

	_, err = p.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestTenantPolicyInWindow(t *testing.T) {
	pol, err := BuildPolicy(&domain.Tenant{ID: "t1", Timezone: "America/New_York"}, DefaultPolicyDefaults())
	require.NoError(t, err)

	// 03:00 UTC is 23:00 the previous day in New York (EDT)
	assert.False(t, pol.InWindow(time.Date(2026, 6, 10, 3, 0, 0, 0, time.UTC)))
	// 16:00 UTC is 12:00 in New York
	assert.True(t, pol.InWindow(time.Date(2026, 6, 10, 16, 0, 0, 0, time.UTC)))
}
