package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	approvalapp "github.com/AzielCF/az-post/approval/application"
	approvalrepo "github.com/AzielCF/az-post/approval/repository"
	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/AzielCF/az-post/conversation/repository"
	"github.com/AzielCF/az-post/core/database"
	identityapp "github.com/AzielCF/az-post/identity/application"
	identity "github.com/AzielCF/az-post/identity/domain"
	identityrepo "github.com/AzielCF/az-post/identity/repository"
	"github.com/AzielCF/az-post/pkg/crypto"
	posts "github.com/AzielCF/az-post/posts/domain"
	postrepo "github.com/AzielCF/az-post/posts/repository"
	tenantapp "github.com/AzielCF/az-post/tenants/application"
	tenants "github.com/AzielCF/az-post/tenants/domain"
	tenantrepo "github.com/AzielCF/az-post/tenants/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stylistPhone = "+15550001111"
	managerPhone = "+15559990000"
)

// --- Fakes ---

type fakeCaptioner struct {
	mu    sync.Mutex
	calls []domain.CaptionRequest
	err   error
}

func (f *fakeCaptioner) Generate(_ context.Context, req domain.CaptionRequest) (domain.CaptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return domain.CaptionResult{}, f.err
	}
	return domain.CaptionResult{
		Caption:      "Sun-kissed balayage for summer",
		Hashtags:     []string{"#balayage"},
		CallToAction: "Book your glow-up today",
	}, nil
}

func (f *fakeCaptioner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeModerator struct{ unsafe bool }

func (f *fakeModerator) Check(context.Context, string, string) (domain.ModerationResult, error) {
	if f.unsafe {
		return domain.ModerationResult{Safe: false, Categories: []string{"harassment"}}, nil
	}
	return domain.ModerationResult{Safe: true}, nil
}

type sentMessage struct {
	to   string
	text string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeMessenger) SendText(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, text: text})
	return nil
}

func (f *fakeMessenger) to(addr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.to == addr {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeMessenger) last(addr string) string {
	msgs := f.to(addr)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type fakeEnqueuer struct {
	repo  posts.IPostRepository
	queue []string
}

func (f *fakeEnqueuer) EnqueuePost(ctx context.Context, postID string) (time.Time, error) {
	f.queue = append(f.queue, postID)
	when := time.Now().UTC().Add(30 * time.Minute)
	_, err := f.repo.Update(ctx, postID, posts.Patch{ScheduledFor: &when})
	return when, err
}

// --- Harness ---

type harness struct {
	machine    *Machine
	captioner  *fakeCaptioner
	moderator  *fakeModerator
	messenger  *fakeMessenger
	enqueuer   *fakeEnqueuer
	posts      *postrepo.PostGormRepository
	identities *identityrepo.IdentityGormRepository
	now        time.Time
}

func newHarness(t *testing.T, tenant tenants.Tenant) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewInMemory()
	require.NoError(t, err)

	sealer, err := crypto.NewSealer("")
	require.NoError(t, err)
	tRepo := tenantrepo.NewTenantGormRepository(db, sealer)
	require.NoError(t, tRepo.InitSchema(ctx))
	require.NoError(t, tRepo.Save(ctx, &tenant))

	iRepo := identityrepo.NewIdentityGormRepository(db)
	require.NoError(t, iRepo.InitSchema(ctx))
	require.NoError(t, iRepo.Create(ctx, &identity.ContributorIdentity{
		ID: "stylist-1", TenantID: tenant.ID, Name: "Jess", InstagramHandle: "@jess.styles", Phone: stylistPhone,
	}))

	pRepo := postrepo.NewPostGormRepository(db)
	require.NoError(t, pRepo.InitSchema(ctx))

	cRepo := approvalrepo.NewCredentialGormRepository(db)
	require.NoError(t, cRepo.InitSchema(ctx))

	sessions := repository.NewMemorySessionStore()
	t.Cleanup(sessions.Close)

	h := &harness{
		captioner:  &fakeCaptioner{},
		moderator:  &fakeModerator{},
		messenger:  &fakeMessenger{},
		enqueuer:   &fakeEnqueuer{repo: pRepo},
		posts:      pRepo,
		identities: iRepo,
		now:        time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
	h.machine = NewMachine(Dependencies{
		Identities: identityapp.NewResolver(iRepo),
		Policies:   tenantapp.NewPolicyProvider(tRepo, tenantapp.DefaultPolicyDefaults(), 0),
		Posts:      pRepo,
		Sessions:   sessions,
		Issuer:     approvalapp.NewIssuer(cRepo, "https://posts.example.com", 0),
		Captioner:  h.captioner,
		Moderator:  h.moderator,
		Messenger:  h.messenger,
		Enqueuer:   h.enqueuer,
	}, Options{})
	h.machine.now = func() time.Time { return h.now }
	return h
}

func (h *harness) addManager(t *testing.T, tenantID string) {
	t.Helper()
	require.NoError(t, h.identities.Create(context.Background(), &identity.ContributorIdentity{
		ID: "manager-1", TenantID: tenantID, Name: "Morgan", Phone: managerPhone, Role: identity.RoleApprover,
	}))
}

func (h *harness) say(t *testing.T, from, text, media string) {
	t.Helper()
	require.NoError(t, h.machine.Handle(context.Background(), domain.InboundEvent{
		ConversationID: from, Text: text, MediaURL: media,
	}))
}

func (h *harness) onlyPost(t *testing.T) *posts.Post {
	t.Helper()
	list, err := h.posts.List(context.Background(), posts.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func baseTenant() tenants.Tenant {
	return tenants.Tenant{
		ID:         "salon-a",
		Name:       "Salon A",
		Timezone:   "America/Chicago",
		SpacingMin: 20,
		SpacingMax: 45,
		BookingURL: "https://book.example.com/a",
	}
}

// --- Tests ---

func TestMachine_UnregisteredSender(t *testing.T) {
	h := newHarness(t, baseTenant())
	h.say(t, "+15553334444", "hello", "")
	assert.Equal(t, msgNotRegistered, h.messenger.last("+15553334444"))

	state, err := h.machine.StateOf(context.Background(), "+15553334444")
	require.NoError(t, err)
	assert.Equal(t, domain.StateUnregistered, state)
}

func TestMachine_ConsentGateQueuesThenResumes(t *testing.T) {
	tenant := baseTenant()
	tenant.RequireConsent = true
	h := newHarness(t, tenant)
	ctx := context.Background()

	h.say(t, stylistPhone, "old photo", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "balayage on long hair", "https://media.example.com/2.jpg")

	assert.Equal(t, 0, h.captioner.count(), "no captioning before consent")
	assert.Equal(t, msgConsentPrompt, h.messenger.last(stylistPhone))
	state, err := h.machine.StateOf(ctx, stylistPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConsentPending, state)

	h.say(t, stylistPhone, "I agree", "")

	require.Equal(t, 1, h.captioner.count())
	req := h.captioner.calls[0]
	assert.Equal(t, "https://media.example.com/2.jpg", req.ImageURL, "latest queued submission wins")
	assert.Equal(t, "balayage on long hair", req.Note)

	msgs := h.messenger.to(stylistPhone)
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, msgConsentThanks, msgs[len(msgs)-2])
	assert.Contains(t, msgs[len(msgs)-1], "Reply *APPROVE* to continue")

	stored, err := h.identities.GetByID(ctx, "stylist-1")
	require.NoError(t, err)
	assert.True(t, stored.ConsentGranted)

	state, err = h.machine.StateOf(ctx, stylistPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDraftPending, state)
}

func TestMachine_PreviewUsesBothRenderings(t *testing.T) {
	h := newHarness(t, baseTenant())
	h.say(t, stylistPhone, "summer balayage", "https://media.example.com/1.jpg")

	preview := h.messenger.last(stylistPhone)
	assert.Contains(t, preview, "Styled by Jess")
	assert.Contains(t, preview, "IG: https://instagram.com/jess.styles")
	assert.Contains(t, preview, "Book: https://book.example.com/a")
}

func TestMachine_ModerationRejectsDraft(t *testing.T) {
	h := newHarness(t, baseTenant())
	h.moderator.unsafe = true
	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	assert.Equal(t, msgFlagged, h.messenger.last(stylistPhone))

	h.say(t, stylistPhone, "APPROVE", "")
	assert.Equal(t, msgNoDraft, h.messenger.last(stylistPhone))
}

func TestMachine_FlaggedSubmissionDiscardsEarlierDraft(t *testing.T) {
	h := newHarness(t, baseTenant())
	h.say(t, stylistPhone, "curls", "https://media.example.com/1.jpg")
	state, err := h.machine.StateOf(context.Background(), stylistPhone)
	require.NoError(t, err)
	require.Equal(t, domain.StateDraftPending, state)

	h.moderator.unsafe = true
	h.say(t, stylistPhone, "note", "https://media.example.com/2.jpg")
	assert.Equal(t, msgFlagged, h.messenger.last(stylistPhone))

	h.say(t, stylistPhone, "APPROVE", "")
	assert.Equal(t, msgNoDraft, h.messenger.last(stylistPhone))
	list, err := h.posts.List(context.Background(), posts.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, h.enqueuer.queue)
}

func TestMachine_FlaggedRegenerateDiscardsDraft(t *testing.T) {
	h := newHarness(t, baseTenant())
	h.say(t, stylistPhone, "curls", "https://media.example.com/1.jpg")

	h.moderator.unsafe = true
	h.say(t, stylistPhone, "REGENERATE", "")
	assert.Equal(t, msgFlagged, h.messenger.last(stylistPhone))

	state, err := h.machine.StateOf(context.Background(), stylistPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, state)

	h.say(t, stylistPhone, "APPROVE", "")
	assert.Equal(t, msgNoDraft, h.messenger.last(stylistPhone))
	assert.Empty(t, h.enqueuer.queue)
}

func TestMachine_ApprovalFlowOverChat(t *testing.T) {
	tenant := baseTenant()
	tenant.RequireApproval = true
	h := newHarness(t, tenant)
	h.addManager(t, tenant.ID)
	h.machine.jitter = func(min, max int) time.Duration {
		assert.Equal(t, 20, min)
		assert.Equal(t, 45, max)
		return 30 * time.Minute
	}
	ctx := context.Background()

	h.say(t, stylistPhone, "fresh color", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "APPROVE", "")

	post := h.onlyPost(t)
	assert.Equal(t, posts.StatusManagerPending, post.Status)
	assert.Equal(t, int64(1), post.Sequence)
	assert.Equal(t, "manager-1", post.ApproverID)
	assert.Equal(t, msgPendingApproval, h.messenger.last(stylistPhone))

	notice := h.messenger.last(managerPhone)
	assert.Contains(t, notice, "New post from Jess")
	assert.Contains(t, notice, "https://posts.example.com/manager/login?token=")

	state, err := h.machine.StateOf(ctx, stylistPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StateManagerPending, state)

	h.say(t, managerPhone, "approve", "")

	approved, err := h.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, posts.StatusManagerApproved, approved.Status)
	require.NotNil(t, approved.ScheduledFor)
	assert.True(t, approved.ScheduledFor.Equal(h.now.Add(30*time.Minute)))
	assert.Equal(t, "manager-1", approved.ApprovedBy)
	assert.Contains(t, h.messenger.last(stylistPhone), "Manager approved your post!")
	assert.Equal(t, msgApproverApproved, h.messenger.last(managerPhone))

	// a second approval finds nothing pending
	h.say(t, managerPhone, "APPROVE", "")
	assert.Equal(t, msgNoPendingPost, h.messenger.last(managerPhone))
}

func TestMachine_ApprovalRequiresManager(t *testing.T) {
	tenant := baseTenant()
	tenant.RequireApproval = true
	h := newHarness(t, tenant)

	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "APPROVE", "")
	assert.Equal(t, msgNoManager, h.messenger.last(stylistPhone))

	list, err := h.posts.List(context.Background(), posts.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMachine_DirectPublishPathEnqueues(t *testing.T) {
	h := newHarness(t, baseTenant())

	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "APPROVE", "")

	post := h.onlyPost(t)
	assert.Equal(t, posts.StatusManagerApproved, post.Status)
	assert.Equal(t, []string{post.ID}, h.enqueuer.queue)
	assert.Contains(t, h.messenger.last(stylistPhone), "queued for publishing")
	assert.Contains(t, post.PrimaryCaption, "IG: https://instagram.com/jess.styles")
	assert.Contains(t, post.SecondaryCaption, "Styled by @jess.styles")
	assert.NotContains(t, post.SecondaryCaption, "https://")
}

func TestMachine_DenyFlowCapturesReason(t *testing.T) {
	tenant := baseTenant()
	tenant.RequireApproval = true
	h := newHarness(t, tenant)
	h.addManager(t, tenant.ID)
	ctx := context.Background()

	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "APPROVE", "")
	h.say(t, managerPhone, "DENY", "")

	assert.Equal(t, denialReasonPrompt("Jess"), h.messenger.last(managerPhone))
	state, err := h.machine.StateOf(ctx, managerPhone)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingDenialReason, state)

	h.say(t, managerPhone, "Lighting is too dark", "")

	post := h.onlyPost(t)
	assert.Equal(t, posts.StatusDenied, post.Status)
	assert.Equal(t, "Lighting is too dark", post.DeniedReason)
	assert.Equal(t, "❌ Your post was denied.\n\nReason: Lighting is too dark", h.messenger.last(stylistPhone))
	assert.Equal(t, msgReasonRecorded, h.messenger.last(managerPhone))
}

func TestMachine_RegenerateAndCancel(t *testing.T) {
	h := newHarness(t, baseTenant())

	h.say(t, stylistPhone, "REGENERATE", "")
	assert.Equal(t, msgNoImage, h.messenger.last(stylistPhone))

	h.say(t, stylistPhone, "curls", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "regenerate", "")
	require.Equal(t, 2, h.captioner.count())
	assert.Equal(t, "https://media.example.com/1.jpg", h.captioner.calls[1].ImageURL)
	assert.Equal(t, "curls", h.captioner.calls[1].Note)

	h.say(t, stylistPhone, "CANCEL", "")
	assert.Equal(t, msgCancelled, h.messenger.last(stylistPhone))
	h.say(t, stylistPhone, "APPROVE", "")
	assert.Equal(t, msgNoDraft, h.messenger.last(stylistPhone))
}

func TestMachine_CancelPersistedPost(t *testing.T) {
	tenant := baseTenant()
	tenant.RequireApproval = true
	h := newHarness(t, tenant)
	h.addManager(t, tenant.ID)

	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "APPROVE", "")
	h.say(t, stylistPhone, "CANCEL", "")

	post := h.onlyPost(t)
	assert.Equal(t, posts.StatusCancelled, post.Status)
	assert.Equal(t, postCancelled(1), h.messenger.last(stylistPhone))

	// the manager can no longer approve it
	h.say(t, managerPhone, "APPROVE", "")
	assert.Equal(t, msgNoPendingPost, h.messenger.last(managerPhone))
}

func TestMachine_CaptionFailureIsReported(t *testing.T) {
	h := newHarness(t, baseTenant())
	h.captioner.err = errors.New("quota exceeded")
	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	assert.Equal(t, msgCaptionFailed, h.messenger.last(stylistPhone))
}

func TestMachine_JoinIsManagerOnly(t *testing.T) {
	h := newHarness(t, baseTenant())
	h.addManager(t, "salon-a")
	ctx := context.Background()

	h.say(t, stylistPhone, "JOIN +15557778888 Riley", "")
	assert.Equal(t, msgOnlyManagersJoin, h.messenger.last(stylistPhone))

	h.say(t, managerPhone, "JOIN +1 (555) 777-8888", "")
	assert.Equal(t, msgJoinUsage, h.messenger.last(managerPhone))

	h.say(t, managerPhone, "JOIN +15557778888 Riley Chen", "")
	assert.Equal(t, joinAdded("Riley Chen", "+15557778888"), h.messenger.last(managerPhone))
	assert.True(t, strings.HasPrefix(h.messenger.last("+15557778888"), "👋 Welcome!"))

	enrolled, err := h.identities.GetByContact(ctx, "+15557778888")
	require.NoError(t, err)
	assert.Equal(t, "salon-a", enrolled.TenantID)

	h.say(t, managerPhone, "JOIN +15557778888 Riley Chen", "")
	assert.Equal(t, joinExisting("Riley Chen"), h.messenger.last(managerPhone))
}

func TestMachine_WebApprovalRacesWithChat(t *testing.T) {
	tenant := baseTenant()
	tenant.RequireApproval = true
	h := newHarness(t, tenant)
	h.addManager(t, tenant.ID)
	ctx := context.Background()

	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "APPROVE", "")
	post := h.onlyPost(t)

	notice := h.messenger.last(managerPhone)
	idx := strings.Index(notice, "token=")
	require.Positive(t, idx)
	token := strings.Fields(notice[idx+len("token="):])[0]

	preview, err := h.machine.Preview(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, post.ID, preview.ID)

	_, err = h.machine.ApproveFromWeb(ctx, token, "some-other-post")
	assert.Error(t, err)

	approved, err := h.machine.ApproveFromWeb(ctx, token, post.ID)
	require.NoError(t, err)
	assert.Equal(t, posts.StatusManagerApproved, approved.Status)

	_, err = h.machine.ApproveFromWeb(ctx, token, post.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyHandled)

	_, err = h.machine.DenyFromWeb(ctx, token, post.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrAlreadyHandled)
}

func TestMachine_WebDeny(t *testing.T) {
	tenant := baseTenant()
	tenant.RequireApproval = true
	h := newHarness(t, tenant)
	h.addManager(t, tenant.ID)
	ctx := context.Background()

	h.say(t, stylistPhone, "note", "https://media.example.com/1.jpg")
	h.say(t, stylistPhone, "APPROVE", "")
	notice := h.messenger.last(managerPhone)
	token := strings.Fields(notice[strings.Index(notice, "token=")+len("token="):])[0]

	_, err := h.machine.DenyFromWeb(ctx, token, "", " ")
	assert.ErrorIs(t, err, domain.ErrReasonRequired)

	denied, err := h.machine.DenyFromWeb(ctx, token, "", "Blurry photo")
	require.NoError(t, err)
	assert.Equal(t, posts.StatusDenied, denied.Status)
	assert.Equal(t, contributorDenied("Blurry photo"), h.messenger.last(stylistPhone))
}
