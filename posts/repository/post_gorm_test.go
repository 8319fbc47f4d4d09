package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-post/core/database"
	"github.com/AzielCF/az-post/posts/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	return db
}

func setupRepo(t *testing.T) *PostGormRepository {
	t.Helper()
	repo := NewPostGormRepository(setupTestDB(t))
	require.NoError(t, repo.InitSchema(context.Background()))
	return repo
}

func newPost(tenantID string) *domain.Post {
	return &domain.Post{
		TenantID:           tenantID,
		ContributorID:      "stylist-1",
		ContributorName:    "Jess",
		ContributorContact: "+15550001111",
		ApproverID:         "manager-1",
		ApproverContact:    "+15559990000",
		ImageURL:           "https://cdn.example.com/a.jpg",
		BaseCaption:        "Fresh balayage",
		Hashtags:           []string{"#balayage"},
		Status:             domain.StatusManagerPending,
	}
}

func TestPostGormRepository_CreateAssignsTenantSequence(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	a := newPost("salon-a")
	b := newPost("salon-a")
	c := newPost("salon-b")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, c))

	assert.Equal(t, int64(1), a.Sequence)
	assert.Equal(t, int64(2), b.Sequence)
	assert.Equal(t, int64(1), c.Sequence, "sequences are scoped per tenant")
	assert.NotEmpty(t, a.ID)

	got, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"#balayage"}, got.Hashtags)
	assert.Equal(t, domain.StatusManagerPending, got.Status)
}

func TestPostGormRepository_ConcurrentCreatesAreGapFree(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(ctx, newPost("salon-a"))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	posts, err := repo.List(ctx, domain.Filter{TenantID: "salon-a", Limit: 100})
	require.NoError(t, err)
	require.Len(t, posts, n)

	seen := map[int64]bool{}
	for _, p := range posts {
		assert.False(t, seen[p.Sequence], "duplicate sequence %d", p.Sequence)
		seen[p.Sequence] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
}

func TestPostGormRepository_GetMissing(t *testing.T) {
	repo := setupRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestPostGormRepository_UpdateRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newPost("salon-a")
	require.NoError(t, repo.Create(ctx, p))

	_, err := repo.Update(ctx, p.ID, domain.Patch{Status: domain.Ptr(domain.StatusPublished)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	when := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	got, err := repo.Update(ctx, p.ID, domain.Patch{
		Status:       domain.Ptr(domain.StatusManagerApproved),
		ScheduledFor: &when,
		ApprovedBy:   domain.Ptr("manager-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusManagerApproved, got.Status)
	require.NotNil(t, got.ScheduledFor)
	assert.True(t, when.Equal(*got.ScheduledFor))
}

func TestPostGormRepository_TerminalStatusClearsSchedule(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	when := time.Now().UTC().Add(time.Hour)
	p := newPost("salon-a")
	p.Status = domain.StatusManagerApproved
	p.ScheduledFor = &when
	require.NoError(t, repo.Create(ctx, p))

	got, ok, err := repo.Transition(ctx, p.ID, []domain.Status{domain.StatusManagerApproved}, domain.StatusCancelled, domain.Patch{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Nil(t, got.ScheduledFor)
}

func TestPostGormRepository_TransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newPost("salon-a")
	require.NoError(t, repo.Create(ctx, p))

	from := []domain.Status{domain.StatusManagerPending}
	_, ok, err := repo.Transition(ctx, p.ID, from, domain.StatusManagerApproved, domain.Patch{ApprovedBy: domain.Ptr("m1")})
	require.NoError(t, err)
	assert.True(t, ok)

	// second approval loses the race
	got, ok, err := repo.Transition(ctx, p.ID, from, domain.StatusManagerApproved, domain.Patch{ApprovedBy: domain.Ptr("m2")})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	stored, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "m1", stored.ApprovedBy)

	_, _, err = repo.Transition(ctx, "missing", from, domain.StatusManagerApproved, domain.Patch{})
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	_, _, err = repo.Transition(ctx, p.ID, []domain.Status{domain.StatusPublished}, domain.StatusQueued, domain.Patch{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPostGormRepository_DueAndOverdue(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	past := now.Add(-10 * time.Minute)
	future := now.Add(10 * time.Minute)

	due := newPost("salon-a")
	due.Status = domain.StatusManagerApproved
	due.ScheduledFor = &past
	later := newPost("salon-a")
	later.Status = domain.StatusManagerApproved
	later.ScheduledFor = &future
	exhausted := newPost("salon-b")
	exhausted.Status = domain.StatusManagerApproved
	exhausted.ScheduledFor = &past
	exhausted.RetryCount = 3
	for _, p := range []*domain.Post{due, later, exhausted} {
		require.NoError(t, repo.Create(ctx, p))
	}

	tenants, err := repo.TenantsWithScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"salon-a", "salon-b"}, tenants)

	posts, err := repo.DueForTenant(ctx, "salon-a", now)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, due.ID, posts[0].ID)

	overdue, err := repo.Overdue(ctx, []domain.Status{domain.StatusManagerApproved, domain.StatusFailed}, now, 3)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, due.ID, overdue[0].ID)
}

func TestPostGormRepository_IncrementRetry(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newPost("salon-a")
	p.Status = domain.StatusManagerApproved
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Update(ctx, p.ID, domain.Patch{IncrementRetry: true, ErrorMessage: domain.Ptr("timeout")})
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	got, err = repo.Update(ctx, p.ID, domain.Patch{IncrementRetry: true})
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "timeout", got.ErrorMessage)
}

func TestPostGormRepository_ApproverLookups(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	p := newPost("salon-a")
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.FindPendingForApprover(ctx, "", "+15559990000")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = repo.FindAwaitingReason(ctx, "manager-1", "")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)

	_, ok, err := repo.Transition(ctx, p.ID, []domain.Status{domain.StatusManagerPending}, domain.StatusAwaitingDenialReason, domain.Patch{})
	require.NoError(t, err)
	require.True(t, ok)

	got, err = repo.FindAwaitingReason(ctx, "manager-1", "+15559990000")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	latest, err := repo.FindLatestForContributor(ctx, "stylist-1", []domain.Status{domain.StatusAwaitingDenialReason})
	require.NoError(t, err)
	assert.Equal(t, p.ID, latest.ID)
}

func TestPostGormRepository_OutboxFeedsMirror(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newPost("salon-a")
	require.NoError(t, repo.Create(ctx, p))
	_, err := repo.Update(ctx, p.ID, domain.Patch{PrimaryCaption: domain.Ptr("Final caption")})
	require.NoError(t, err)

	events, err := repo.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCreated, events[0].Kind)
	assert.Equal(t, domain.EventUpdated, events[1].Kind)
	assert.Equal(t, "Final caption", events[1].Snapshot.PrimaryCaption)

	mirror := NewFileMirror(filepath.Join(t.TempDir(), "mirror", "posts.json"))
	for _, ev := range events {
		require.NoError(t, mirror.Apply(ctx, ev.Snapshot))
	}
	require.NoError(t, repo.MarkApplied(ctx, []int64{events[0].ID, events[1].ID}, time.Now()))

	pending, err := repo.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	snap, err := mirror.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "Final caption", snap[0].PrimaryCaption)

	// an older snapshot must not clobber the newer one
	require.NoError(t, mirror.Apply(ctx, events[0].Snapshot))
	snap, err = mirror.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "Final caption", snap[0].PrimaryCaption)
}

func TestPostGormRepository_OutboxDeadLetterAndPurge(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	first, second := newPost("salon-a"), newPost("salon-a")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	events, err := repo.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	now := time.Now().UTC()
	require.NoError(t, repo.MarkFailed(ctx, events[0].ID, "mirror down"))
	require.NoError(t, repo.MarkDead(ctx, events[0].ID, "mirror down", now))
	require.NoError(t, repo.MarkApplied(ctx, []int64{events[1].ID}, now.Add(-100*time.Hour)))

	pending, err := repo.PendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := repo.PurgeApplied(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var dead postEventModel
	require.NoError(t, repo.db.First(&dead, events[0].ID).Error)
	assert.Equal(t, 2, dead.Attempts)
	assert.NotNil(t, dead.DeadAt)
	assert.Equal(t, "mirror down", dead.LastError)
}
