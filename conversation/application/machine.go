package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	approval "github.com/AzielCF/az-post/approval/domain"
	"github.com/AzielCF/az-post/captions"
	"github.com/AzielCF/az-post/conversation/domain"
	identity "github.com/AzielCF/az-post/identity/domain"
	"github.com/AzielCF/az-post/pkg/timeutils"
	posts "github.com/AzielCF/az-post/posts/domain"
	tenants "github.com/AzielCF/az-post/tenants/domain"
	"github.com/sirupsen/logrus"
)

const (
	defaultCaption = "Beautiful new style!"
	defaultCTA     = "Book your next visit today!"
)

// IdentityService is the slice of the identity resolver the machine needs.
type IdentityService interface {
	Resolve(ctx context.Context, conversationID string) (*identity.ContributorIdentity, error)
	ApproverForTenant(ctx context.Context, tenantID string) (*identity.ContributorIdentity, error)
	GetByID(ctx context.Context, id string) (*identity.ContributorIdentity, error)
	GrantConsent(ctx context.Context, who *identity.ContributorIdentity) error
	Enroll(ctx context.Context, approver *identity.ContributorIdentity, phone, name string) (*identity.ContributorIdentity, bool, error)
}

type PolicySource interface {
	Get(ctx context.Context, tenantID string) (*tenants.TenantPolicy, error)
}

type CredentialIssuer interface {
	Issue(ctx context.Context, postID, approverID, tenantID string) (*approval.Credential, error)
	Verify(ctx context.Context, token string) (*approval.Credential, error)
	Link(cred *approval.Credential) string
}

// Dependencies wires the machine to its collaborators.
type Dependencies struct {
	Identities IdentityService
	Policies   PolicySource
	Posts      posts.IPostRepository
	Sessions   domain.SessionStore
	Issuer     CredentialIssuer
	Captioner  domain.Captioner
	Moderator  domain.Moderator
	Messenger  domain.Messenger
	Enqueuer   domain.Enqueuer
}

type Options struct {
	SessionTTL     time.Duration
	CaptionTimeout time.Duration
	SecondaryCTA   string
	MaxCaptionLen  int
}

// Machine drives the per-conversation submission and approval flow.
type Machine struct {
	deps   Dependencies
	opts   Options
	now    func() time.Time
	jitter timeutils.Jitter
}

func NewMachine(deps Dependencies, opts Options) *Machine {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.CaptionTimeout <= 0 {
		opts.CaptionTimeout = 60 * time.Second
	}
	if opts.SecondaryCTA == "" {
		opts.SecondaryCTA = captions.DefaultSecondaryCTA
	}
	if opts.MaxCaptionLen <= 0 {
		opts.MaxCaptionLen = captions.DefaultMaxLength
	}
	return &Machine{
		deps:   deps,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		jitter: timeutils.RandomJitter,
	}
}

func sessionKey(who *identity.ContributorIdentity) string {
	return who.TenantID + ":" + who.ID
}

func (m *Machine) send(ctx context.Context, to, text string) {
	if to == "" {
		logrus.Warnf("[MACHINE] dropping message with no recipient: %.40q", text)
		return
	}
	if err := m.deps.Messenger.SendText(ctx, to, text); err != nil {
		logrus.WithError(err).Errorf("[MACHINE] failed to send message to %s", to)
	}
}

// Handle processes one inbound message. Business failures are answered in the conversation;
// only infrastructure errors are returned.
func (m *Machine) Handle(ctx context.Context, ev domain.InboundEvent) error {
	convID := strings.TrimSpace(ev.ConversationID)
	if convID == "" {
		return fmt.Errorf("inbound event without conversation id")
	}

	who, err := m.deps.Identities.Resolve(ctx, convID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			m.send(ctx, convID, msgNotRegistered)
			return nil
		}
		m.send(ctx, convID, msgGenericFailure)
		return fmt.Errorf("resolve %s: %w", convID, err)
	}

	policy, err := m.deps.Policies.Get(ctx, who.TenantID)
	if err != nil {
		m.send(ctx, convID, msgGenericFailure)
		return fmt.Errorf("load policy for tenant %s: %w", who.TenantID, err)
	}

	cmd := domain.ParseCommand(ev.Text)
	logrus.Debugf("[MACHINE] %s (%s) -> %s", who.DisplayName(), who.Role, cmd.Kind)

	if who.IsApprover() && cmd.Text != "" && cmd.Kind == domain.CommandNone {
		post, err := m.deps.Posts.FindAwaitingReason(ctx, who.ID, who.Contact())
		switch {
		case err == nil:
			_, err := m.recordDenial(ctx, who, post, cmd.Text)
			if err != nil && !errors.Is(err, domain.ErrAlreadyHandled) {
				m.send(ctx, convID, msgGenericFailure)
				return err
			}
			return nil
		case !errors.Is(err, posts.ErrPostNotFound):
			return err
		}
	}

	if policy.RequireConsent && !who.ConsentGranted && !who.IsApprover() {
		return m.handleConsent(ctx, convID, who, policy, ev, cmd)
	}

	switch cmd.Kind {
	case domain.CommandJoin:
		return m.handleJoin(ctx, convID, who, cmd.Args)
	case domain.CommandCancel:
		return m.handleCancel(ctx, convID, who)
	case domain.CommandRegenerate:
		return m.handleRegenerate(ctx, convID, who, policy)
	case domain.CommandApprove:
		return m.handleApprove(ctx, convID, who, policy)
	case domain.CommandDeny:
		return m.handleDeny(ctx, convID, who)
	case domain.CommandAgree, domain.CommandNone:
		if ev.MediaURL == "" {
			m.send(ctx, convID, msgNoMedia)
			return nil
		}
		return m.startSubmission(ctx, convID, who, policy, domain.Submission{ImageURL: ev.MediaURL, Note: noteOf(cmd)})
	default:
		return fmt.Errorf("unhandled command kind %s", cmd.Kind)
	}
}

func noteOf(cmd domain.Command) string {
	if cmd.Kind == domain.CommandAgree {
		return ""
	}
	return cmd.Text
}

// --- Consent ---

func (m *Machine) handleConsent(ctx context.Context, convID string, who *identity.ContributorIdentity, policy *tenants.TenantPolicy, ev domain.InboundEvent, cmd domain.Command) error {
	key := sessionKey(who)
	session, err := m.deps.Sessions.GetConsent(ctx, key)
	if err != nil {
		return err
	}

	if cmd.Kind == domain.CommandAgree {
		if err := m.deps.Identities.GrantConsent(ctx, who); err != nil {
			m.send(ctx, convID, msgGenericFailure)
			return err
		}
		if err := m.deps.Sessions.DeleteConsent(ctx, key); err != nil {
			logrus.WithError(err).Warn("[MACHINE] could not clear consent session")
		}
		m.send(ctx, convID, msgConsentThanks)

		if session != nil && session.Queued != nil {
			return m.startSubmission(ctx, convID, who, policy, *session.Queued)
		}
		m.send(ctx, convID, msgSendPhoto)
		return nil
	}

	if session == nil {
		session = &domain.ConsentSession{Status: domain.ConsentPending}
	}
	if ev.MediaURL != "" {
		session.Queued = &domain.Submission{ImageURL: ev.MediaURL, Note: cmd.Text}
	}
	if err := m.deps.Sessions.SaveConsent(ctx, key, session, m.opts.SessionTTL); err != nil {
		return err
	}
	m.send(ctx, convID, msgConsentPrompt)
	return nil
}

// --- Submission ---

func (m *Machine) startSubmission(ctx context.Context, convID string, who *identity.ContributorIdentity, policy *tenants.TenantPolicy, sub domain.Submission) error {
	genCtx, cancel := context.WithTimeout(ctx, m.opts.CaptionTimeout)
	defer cancel()

	result, err := m.deps.Captioner.Generate(genCtx, domain.CaptionRequest{
		ImageURL:    sub.ImageURL,
		Note:        sub.Note,
		Policy:      policy,
		Contributor: who,
	})
	if err != nil {
		logrus.WithError(err).Errorf("[MACHINE] caption generation failed for %s", who.ID)
		m.send(ctx, convID, msgCaptionFailed)
		return nil
	}

	caption := captions.Sanitize(result.Caption)
	if caption == "" {
		caption = defaultCaption
	}

	verdict, err := m.deps.Moderator.Check(ctx, caption, sub.Note)
	if err != nil {
		logrus.WithError(err).Warn("[MACHINE] moderation unavailable, continuing")
		verdict = domain.ModerationResult{Safe: true}
	}
	if !verdict.Safe {
		logrus.Warnf("[MACHINE] submission from %s flagged: %v", who.ID, verdict.Categories)
		m.clearDraft(ctx, who)
		m.send(ctx, convID, msgFlagged)
		return nil
	}

	draft := m.buildDraft(who, policy, sub, caption, result)
	if err := m.deps.Sessions.SaveDraft(ctx, sessionKey(who), draft, m.opts.SessionTTL); err != nil {
		m.send(ctx, convID, msgGenericFailure)
		return err
	}
	m.send(ctx, convID, previewMessage(draft.PrimaryCaption))
	return nil
}

func (m *Machine) buildDraft(who *identity.ContributorIdentity, policy *tenants.TenantPolicy, sub domain.Submission, caption string, result domain.CaptionResult) *domain.Draft {
	hashtags := captions.MergeHashtags(result.Hashtags, policy.DefaultHashtags)
	cta := captions.Sanitize(result.CallToAction)
	if cta == "" {
		cta = policy.DefaultCTA
	}
	if cta == "" {
		cta = defaultCTA
	}

	base := captions.Compose(captions.Parts{
		Caption:    caption,
		CreditName: who.DisplayName(),
		Hashtags:   hashtags,
		CTA:        cta,
		BookingURL: policy.BookingURL,
	})
	return &domain.Draft{
		ContributorID:    who.ID,
		TenantID:         who.TenantID,
		ImageURL:         sub.ImageURL,
		Note:             sub.Note,
		Caption:          caption,
		Hashtags:         hashtags,
		CallToAction:     cta,
		BaseCaption:      base,
		PrimaryCaption:   captions.Truncate(captions.RenderPrimary(base, who.DisplayName(), who.Handle()), m.opts.MaxCaptionLen),
		SecondaryCaption: captions.Truncate(captions.RenderSecondary(base, who.DisplayName(), who.Handle(), m.opts.SecondaryCTA), m.opts.MaxCaptionLen),
		CreatedAt:        m.now(),
	}
}

func (m *Machine) handleRegenerate(ctx context.Context, convID string, who *identity.ContributorIdentity, policy *tenants.TenantPolicy) error {
	draft, err := m.deps.Sessions.GetDraft(ctx, sessionKey(who))
	if err != nil {
		return err
	}
	if draft == nil || draft.ImageURL == "" {
		m.send(ctx, convID, msgNoImage)
		return nil
	}
	m.send(ctx, convID, msgRegenerating)
	return m.startSubmission(ctx, convID, who, policy, domain.Submission{ImageURL: draft.ImageURL, Note: draft.Note})
}

func (m *Machine) handleCancel(ctx context.Context, convID string, who *identity.ContributorIdentity) error {
	key := sessionKey(who)
	draft, err := m.deps.Sessions.GetDraft(ctx, key)
	if err != nil {
		return err
	}
	if draft != nil {
		if err := m.deps.Sessions.DeleteDraft(ctx, key); err != nil {
			return err
		}
		m.send(ctx, convID, msgCancelled)
		return nil
	}

	post, err := m.deps.Posts.FindLatestForContributor(ctx, who.ID, posts.CancellableStatuses())
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			m.send(ctx, convID, msgCancelled)
			return nil
		}
		return err
	}
	_, ok, err := m.deps.Posts.Transition(ctx, post.ID, posts.CancellableStatuses(), posts.StatusCancelled, posts.Patch{})
	if err != nil {
		return err
	}
	if !ok {
		m.send(ctx, convID, msgAlreadyHandled)
		return nil
	}
	logrus.Infof("[MACHINE] %s cancelled post %s", who.ID, post.ID)
	m.send(ctx, convID, postCancelled(post.Sequence))
	return nil
}

// --- Approve / Deny ---

func (m *Machine) handleApprove(ctx context.Context, convID string, who *identity.ContributorIdentity, policy *tenants.TenantPolicy) error {
	draft, err := m.deps.Sessions.GetDraft(ctx, sessionKey(who))
	if err != nil {
		return err
	}
	if draft != nil {
		return m.submitDraft(ctx, convID, who, policy, draft)
	}

	if who.IsApprover() {
		post, err := m.deps.Posts.FindPendingForApprover(ctx, who.ID, who.Contact())
		if err != nil {
			if errors.Is(err, posts.ErrPostNotFound) {
				m.send(ctx, convID, msgNoPendingPost)
				return nil
			}
			return err
		}
		_, err = m.approvePost(ctx, who, post)
		if err != nil && !errors.Is(err, domain.ErrAlreadyHandled) {
			m.send(ctx, convID, msgGenericFailure)
			return err
		}
		return nil
	}

	m.send(ctx, convID, msgNoDraft)
	return nil
}

func (m *Machine) submitDraft(ctx context.Context, convID string, who *identity.ContributorIdentity, policy *tenants.TenantPolicy, draft *domain.Draft) error {
	post := &posts.Post{
		TenantID:           who.TenantID,
		ContributorID:      who.ID,
		ContributorName:    who.DisplayName(),
		ContributorContact: who.Contact(),
		ImageURL:           draft.ImageURL,
		Note:               draft.Note,
		BaseCaption:        draft.BaseCaption,
		PrimaryCaption:     draft.PrimaryCaption,
		SecondaryCaption:   draft.SecondaryCaption,
		Hashtags:           draft.Hashtags,
		CallToAction:       draft.CallToAction,
	}

	if !policy.RequireApproval {
		post.Status = posts.StatusManagerApproved
		if err := m.deps.Posts.Create(ctx, post); err != nil {
			m.send(ctx, convID, msgSaveFailed)
			return err
		}
		m.clearDraft(ctx, who)
		eta, err := m.deps.Enqueuer.EnqueuePost(ctx, post.ID)
		if err != nil {
			m.send(ctx, convID, msgGenericFailure)
			return fmt.Errorf("enqueue post %s: %w", post.ID, err)
		}
		m.send(ctx, convID, contributorQueued(eta, m.now()))
		return nil
	}

	approver, err := m.deps.Identities.ApproverForTenant(ctx, who.TenantID)
	switch {
	case errors.Is(err, identity.ErrApproverNotFound):
		m.send(ctx, convID, msgNoManager)
		return nil
	case errors.Is(err, identity.ErrApproverUnreachable):
		m.send(ctx, convID, msgManagerNoContact)
		return nil
	case err != nil:
		return err
	}

	post.Status = posts.StatusManagerPending
	post.ApproverID = approver.ID
	post.ApproverContact = approver.Contact()
	if err := m.deps.Posts.Create(ctx, post); err != nil {
		m.send(ctx, convID, msgSaveFailed)
		return err
	}
	m.clearDraft(ctx, who)

	link := ""
	cred, err := m.deps.Issuer.Issue(ctx, post.ID, approver.ID, who.TenantID)
	if err != nil {
		logrus.WithError(err).Errorf("[MACHINE] could not issue approval link for post %s", post.ID)
	} else {
		link = m.deps.Issuer.Link(cred)
	}

	m.send(ctx, approver.Contact(), approverNotice(who.DisplayName(), link, post.PrimaryCaption))
	m.send(ctx, convID, msgPendingApproval)
	logrus.Infof("[MACHINE] post %s (#%d) awaiting approval by %s", post.ID, post.Sequence, approver.ID)
	return nil
}

func (m *Machine) clearDraft(ctx context.Context, who *identity.ContributorIdentity) {
	if err := m.deps.Sessions.DeleteDraft(ctx, sessionKey(who)); err != nil {
		logrus.WithError(err).Warnf("[MACHINE] could not clear draft for %s", who.ID)
	}
}

// approvePost moves a pending post to manager_approved with a jittered publish time.
// Only the first of several concurrent approvals wins; the others get ErrAlreadyHandled.
func (m *Machine) approvePost(ctx context.Context, approver *identity.ContributorIdentity, post *posts.Post) (*posts.Post, error) {
	policy, err := m.deps.Policies.Get(ctx, post.TenantID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	when := now.Add(m.jitter(policy.SpacingMin, policy.SpacingMax))

	updated, ok, err := m.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusManagerPending}, posts.StatusManagerApproved,
		posts.Patch{
			ScheduledFor: &when,
			ApprovedBy:   posts.Ptr(approver.ID),
			ApprovedAt:   &now,
			RetryCount:   posts.Ptr(0),
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		m.send(ctx, approver.Contact(), msgAlreadyHandled)
		return nil, domain.ErrAlreadyHandled
	}

	logrus.Infof("[MACHINE] post %s approved by %s, scheduled for %s", post.ID, approver.ID, when.Format(time.RFC3339))
	m.send(ctx, approver.Contact(), msgApproverApproved)
	m.send(ctx, updated.ContributorContact, contributorApproved(when, now))
	return updated, nil
}

func (m *Machine) handleDeny(ctx context.Context, convID string, who *identity.ContributorIdentity) error {
	if !who.IsApprover() {
		m.send(ctx, convID, msgOnlyManagersDeny)
		return nil
	}
	post, err := m.deps.Posts.FindPendingForApprover(ctx, who.ID, who.Contact())
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			m.send(ctx, convID, msgNoPendingPost)
			return nil
		}
		return err
	}
	_, ok, err := m.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusManagerPending}, posts.StatusAwaitingDenialReason, posts.Patch{})
	if err != nil {
		return err
	}
	if !ok {
		m.send(ctx, convID, msgAlreadyHandled)
		return nil
	}
	m.send(ctx, convID, denialReasonPrompt(post.ContributorName))
	return nil
}

func (m *Machine) recordDenial(ctx context.Context, approver *identity.ContributorIdentity, post *posts.Post, reason string) (*posts.Post, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrReasonRequired
	}
	updated, ok, err := m.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusAwaitingDenialReason}, posts.StatusDenied,
		posts.Patch{DeniedReason: &reason})
	if err != nil {
		return nil, err
	}
	if !ok {
		m.send(ctx, approver.Contact(), msgAlreadyHandled)
		return nil, domain.ErrAlreadyHandled
	}
	logrus.Infof("[MACHINE] post %s denied by %s", post.ID, approver.ID)
	m.send(ctx, updated.ContributorContact, contributorDenied(reason))
	m.send(ctx, approver.Contact(), msgReasonRecorded)
	return updated, nil
}

// --- Join ---

func (m *Machine) handleJoin(ctx context.Context, convID string, who *identity.ContributorIdentity, args string) error {
	if !who.IsApprover() {
		m.send(ctx, convID, msgOnlyManagersJoin)
		return nil
	}
	phone, name, _ := strings.Cut(strings.TrimSpace(args), " ")
	name = strings.TrimSpace(name)
	if phone == "" || name == "" {
		m.send(ctx, convID, msgJoinUsage)
		return nil
	}

	enrolled, created, err := m.deps.Identities.Enroll(ctx, who, phone, name)
	if err != nil {
		logrus.WithError(err).Warnf("[MACHINE] JOIN by %s failed", who.ID)
		m.send(ctx, convID, msgJoinUsage)
		return nil
	}
	if !created {
		m.send(ctx, convID, joinExisting(enrolled.DisplayName()))
		return nil
	}
	m.send(ctx, convID, joinAdded(enrolled.DisplayName(), enrolled.Phone))
	m.send(ctx, enrolled.Contact(), joinWelcome(who.DisplayName()))
	return nil
}

// --- Web actions ---

func (m *Machine) verifyWebAction(ctx context.Context, token, postID string) (*identity.ContributorIdentity, *posts.Post, error) {
	cred, err := m.deps.Issuer.Verify(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if postID != "" && cred.PostID != postID {
		return nil, nil, approval.ErrCredentialInvalid
	}
	approver, err := m.deps.Identities.GetByID(ctx, cred.ApproverID)
	if err != nil {
		return nil, nil, err
	}
	post, err := m.deps.Posts.Get(ctx, cred.PostID)
	if err != nil {
		return nil, nil, err
	}
	return approver, post, nil
}

// ApproveFromWeb approves the post bound to an approval link. It races safely with a chat APPROVE.
func (m *Machine) ApproveFromWeb(ctx context.Context, token, postID string) (*posts.Post, error) {
	approver, post, err := m.verifyWebAction(ctx, token, postID)
	if err != nil {
		return nil, err
	}
	return m.approvePost(ctx, approver, post)
}

// DenyFromWeb denies the post bound to an approval link with the given reason.
func (m *Machine) DenyFromWeb(ctx context.Context, token, postID, reason string) (*posts.Post, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.ErrReasonRequired
	}
	approver, post, err := m.verifyWebAction(ctx, token, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == posts.StatusManagerPending {
		_, ok, err := m.deps.Posts.Transition(ctx, post.ID,
			[]posts.Status{posts.StatusManagerPending}, posts.StatusAwaitingDenialReason, posts.Patch{})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrAlreadyHandled
		}
	} else if post.Status != posts.StatusAwaitingDenialReason {
		return nil, domain.ErrAlreadyHandled
	}
	return m.recordDenial(ctx, approver, post, reason)
}

// Preview returns the post behind an approval link without changing it.
func (m *Machine) Preview(ctx context.Context, token string) (*posts.Post, error) {
	_, post, err := m.verifyWebAction(ctx, token, "")
	return post, err
}

// --- Introspection ---

// StateOf reports where a conversation currently is in the flow.
func (m *Machine) StateOf(ctx context.Context, conversationID string) (domain.State, error) {
	who, err := m.deps.Identities.Resolve(ctx, conversationID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return domain.StateUnregistered, nil
		}
		return "", err
	}

	if who.IsApprover() {
		if _, err := m.deps.Posts.FindAwaitingReason(ctx, who.ID, who.Contact()); err == nil {
			return domain.StateAwaitingDenialReason, nil
		} else if !errors.Is(err, posts.ErrPostNotFound) {
			return "", err
		}
	} else {
		policy, err := m.deps.Policies.Get(ctx, who.TenantID)
		if err != nil {
			return "", err
		}
		if policy.RequireConsent && !who.ConsentGranted {
			return domain.StateConsentPending, nil
		}
	}

	draft, err := m.deps.Sessions.GetDraft(ctx, sessionKey(who))
	if err != nil {
		return "", err
	}
	if draft != nil {
		return domain.StateDraftPending, nil
	}

	if _, err := m.deps.Posts.FindLatestForContributor(ctx, who.ID, []posts.Status{posts.StatusManagerPending}); err == nil {
		return domain.StateManagerPending, nil
	} else if !errors.Is(err, posts.ErrPostNotFound) {
		return "", err
	}
	return domain.StateIdle, nil
}
