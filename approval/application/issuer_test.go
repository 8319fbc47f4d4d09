package application

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-post/approval/domain"
	"github.com/AzielCF/az-post/approval/repository"
	"github.com/AzielCF/az-post/core/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIssuer(t *testing.T) (*Issuer, *time.Time) {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)

	repo := repository.NewCredentialGormRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))

	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(repo, "https://posts.example.com/", 0)
	issuer.now = func() time.Time { return clock }
	return issuer, &clock
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	issuer, _ := setupIssuer(t)

	cred, err := issuer.Issue(ctx, "post-1", "manager-1", "salon-a")
	require.NoError(t, err)
	assert.Len(t, cred.Token, 32)
	assert.Equal(t, "https://posts.example.com/manager/login?token="+cred.Token, issuer.Link(cred))

	got, err := issuer.Verify(ctx, cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "post-1", got.PostID)
	require.NotNil(t, got.UsedAt)

	other, err := issuer.Issue(ctx, "post-1", "manager-1", "salon-a")
	require.NoError(t, err)
	assert.NotEqual(t, cred.Token, other.Token)
}

func TestIssuer_VerifyRejectsUnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	issuer, clock := setupIssuer(t)

	_, err := issuer.Verify(ctx, "")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
	_, err = issuer.Verify(ctx, "deadbeef")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)

	cred, err := issuer.Issue(ctx, "post-1", "manager-1", "salon-a")
	require.NoError(t, err)

	*clock = clock.Add(DefaultTokenTTL)
	_, err = issuer.Verify(ctx, cred.Token)
	assert.ErrorIs(t, err, domain.ErrCredentialExpired)

	*clock = clock.Add(time.Second)
	n, err := issuer.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
