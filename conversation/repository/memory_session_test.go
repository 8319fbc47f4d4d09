package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore_DraftLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	defer store.Close()

	got, err := store.GetDraft(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	draft := &domain.Draft{ContributorID: "c1", Caption: "Fresh cut", Hashtags: []string{"#hair"}}
	require.NoError(t, store.SaveDraft(ctx, "c1", draft, time.Minute))

	got, err = store.GetDraft(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Fresh cut", got.Caption)

	// callers get copies
	got.Hashtags[0] = "#changed"
	again, _ := store.GetDraft(ctx, "c1")
	assert.Equal(t, "#hair", again.Hashtags[0])

	require.NoError(t, store.DeleteDraft(ctx, "c1"))
	got, _ = store.GetDraft(ctx, "c1")
	assert.Nil(t, got)
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	defer store.Close()

	require.NoError(t, store.SaveConsent(ctx, "c1", &domain.ConsentSession{
		Status: domain.ConsentPending,
		Queued: &domain.Submission{ImageURL: "https://x/img.jpg"},
	}, 20*time.Millisecond))

	s, err := store.GetConsent(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "https://x/img.jpg", s.Queued.ImageURL)

	time.Sleep(40 * time.Millisecond)
	s, err = store.GetConsent(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, s)

	store.cleanup()
	drafts, consents := store.Stats()
	assert.Zero(t, drafts)
	assert.Zero(t, consents)
}
