package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-post/pkg/timeutils"
	posts "github.com/AzielCF/az-post/posts/domain"
	"github.com/AzielCF/az-post/scheduler/domain"
	tenants "github.com/AzielCF/az-post/tenants/domain"
	"github.com/sirupsen/logrus"
)

const tickLockName = "scheduler-tick"

type Dependencies struct {
	Posts     posts.IPostRepository
	Policies  domain.PolicySource
	Primary   domain.PrimaryPublisher
	Secondary domain.SecondaryPublisher
	// Optional collaborators
	Rehoster domain.Rehoster
	Notifier domain.Notifier
	Locker   domain.Locker
	Metrics  *Metrics
}

type Options struct {
	Interval           time.Duration
	ForcePostNow       bool
	IgnoreWindow       bool
	MaxRecoveryRetries int
	DeferBy            time.Duration
	LockTTL            time.Duration
}

// Engine publishes approved posts when they come due.
type Engine struct {
	deps   Dependencies
	opts   Options
	now    func() time.Time
	jitter timeutils.Jitter

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(deps Dependencies, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.MaxRecoveryRetries <= 0 {
		opts.MaxRecoveryRetries = 3
	}
	if opts.DeferBy <= 0 {
		opts.DeferBy = time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Engine{
		deps:   deps,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		jitter: timeutils.RandomJitter,
	}
}

// Start runs the recovery sweep and then ticks every interval until Stop or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	if n, err := e.Recover(runCtx); err != nil {
		logrus.WithError(err).Error("[SCHEDULER] recovery sweep failed")
	} else if n > 0 {
		logrus.Infof("[SCHEDULER] recovered %d overdue posts", n)
	}

	go e.loop(runCtx, e.done)
	logrus.Infof("[SCHEDULER] started (interval %s, force=%v, ignore_window=%v)",
		e.opts.Interval, e.opts.ForcePostNow, e.opts.IgnoreWindow)
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logrus.Info("[SCHEDULER] stopped")
}

// Started reports whether the tick loop is running.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Busy reports whether a tick is in progress.
func (e *Engine) Busy() bool {
	return e.running.Load()
}

// Tick runs one scheduler pass. A pass that finds another one in progress is skipped.
func (e *Engine) Tick(ctx context.Context) domain.TickReport {
	began := time.Now()
	report := domain.TickReport{StartedAt: e.now()}

	if !e.running.CompareAndSwap(false, true) {
		logrus.Debug("[SCHEDULER] previous tick still running, skipping")
		report.Skipped = true
		e.deps.Metrics.tick(true, 0)
		return report
	}
	defer e.running.Store(false)

	if e.deps.Locker != nil {
		lease, err := e.deps.Locker.Acquire(ctx, tickLockName, e.opts.LockTTL)
		if err != nil || lease == nil {
			if err != nil {
				logrus.WithError(err).Warn("[SCHEDULER] tick lock unavailable, skipping")
			} else {
				logrus.Debug("[SCHEDULER] another instance holds the tick lock, skipping")
			}
			report.Skipped = true
			e.deps.Metrics.tick(true, 0)
			return report
		}
		defer func() {
			if err := lease.Release(context.Background()); err != nil {
				logrus.WithError(err).Warn("[SCHEDULER] failed to release tick lock")
			}
		}()
	}

	tenantIDs, err := e.deps.Posts.TenantsWithScheduled(ctx)
	if err != nil {
		logrus.WithError(err).Error("[SCHEDULER] failed to list tenants with scheduled posts")
	}
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			break
		}
		report.Tenants++
		report.Results = append(report.Results, e.tickTenant(ctx, tenantID)...)
	}

	elapsed := time.Since(began)
	report.Duration = elapsed.String()
	e.deps.Metrics.tick(false, elapsed.Seconds())
	if len(report.Results) > 0 {
		logrus.Infof("[SCHEDULER] tick done: %d tenants, %d published, %d deferred, %d failed, %d parked in %s",
			report.Tenants, report.Count(domain.OutcomePublished), report.Count(domain.OutcomeDeferred),
			report.Count(domain.OutcomeFailed), report.Count(domain.OutcomeParked), report.Duration)
	}
	return report
}

func (e *Engine) tickTenant(ctx context.Context, tenantID string) []domain.PostResult {
	policy, err := e.deps.Policies.Get(ctx, tenantID)
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] cannot load policy for tenant %s, leaving its posts for the next tick", tenantID)
		return nil
	}

	now := e.now()
	due, err := e.deps.Posts.DueForTenant(ctx, tenantID, now)
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] failed to load due posts for tenant %s", tenantID)
		return nil
	}
	if len(due) == 0 {
		return nil
	}

	open := e.opts.ForcePostNow || e.opts.IgnoreWindow || policy.InWindow(now)
	results := make([]domain.PostResult, 0, len(due))
	for _, post := range due {
		if ctx.Err() != nil {
			break
		}
		var res domain.PostResult
		if open {
			res = e.publish(ctx, policy, post)
		} else {
			res = e.deferPost(ctx, policy, post, now)
		}
		e.deps.Metrics.outcome(res.Outcome)
		results = append(results, res)
	}
	return results
}

func (e *Engine) deferPost(ctx context.Context, policy *tenants.TenantPolicy, post *posts.Post, now time.Time) domain.PostResult {
	res := domain.PostResult{PostID: post.ID, TenantID: post.TenantID, Outcome: domain.OutcomeDeferred}
	next := now.Add(e.opts.DeferBy)
	_, ok, err := e.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusManagerApproved}, posts.StatusManagerApproved,
		posts.Patch{ScheduledFor: &next})
	switch {
	case err != nil:
		logrus.WithError(err).Errorf("[SCHEDULER] failed to defer post %s", post.ID)
		res.Outcome, res.Error = domain.OutcomeFailed, err.Error()
	case !ok:
		res.Outcome = domain.OutcomeSkipped
	default:
		logrus.Infof("[SCHEDULER] tenant %s outside posting window %s (local %s), post %s moved to %s",
			policy.TenantID, policy.Window, policy.LocalTime(now).Format("15:04"), post.ID, next.Format(time.RFC3339))
	}
	return res
}

func (e *Engine) publish(ctx context.Context, policy *tenants.TenantPolicy, post *posts.Post) domain.PostResult {
	res := domain.PostResult{PostID: post.ID, TenantID: post.TenantID}

	if !policy.Credentials.HasPrimary() {
		res.Outcome = domain.OutcomeParked
		res.Error = domain.ErrPlatformCredentialMissing.Error()
		e.park(ctx, post, domain.ErrPlatformCredentialMissing)
		return res
	}

	claimed, ok, err := e.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusManagerApproved}, posts.StatusQueued, posts.Patch{})
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] failed to claim post %s", post.ID)
		res.Outcome, res.Error = domain.OutcomeFailed, err.Error()
		return res
	}
	if !ok {
		logrus.Debugf("[SCHEDULER] post %s changed before it could be claimed", post.ID)
		res.Outcome = domain.OutcomeSkipped
		return res
	}

	published, err := e.publishClaimed(ctx, policy, claimed)
	if err != nil {
		res.Outcome, res.Error = domain.OutcomeFailed, err.Error()
		e.fail(ctx, policy, claimed, err)
		return res
	}
	if published == nil {
		res.Outcome = domain.OutcomeSkipped
		return res
	}

	res.Outcome = domain.OutcomePublished
	e.notify(ctx, published.ContributorContact, postLive(published))
	return res
}

// publishClaimed pushes a queued post to both networks. It returns nil without error when the
// post left the queue while publishing (for example a cancel).
func (e *Engine) publishClaimed(ctx context.Context, policy *tenants.TenantPolicy, post *posts.Post) (*posts.Post, error) {
	creds := policy.Credentials
	imageURL := post.ImageURL
	log := logrus.WithFields(logrus.Fields{"post_id": post.ID, "tenant_id": post.TenantID})

	if e.deps.Rehoster != nil && imageURL != "" {
		public, err := e.deps.Rehoster.Rehost(ctx, imageURL, post.TenantID)
		if err != nil {
			return nil, fmt.Errorf("rehost image: %w", err)
		}
		if public != imageURL {
			updated, err := e.deps.Posts.Update(ctx, post.ID, posts.Patch{ImageURL: &public})
			if err != nil {
				return nil, fmt.Errorf("persist rehosted image: %w", err)
			}
			post, imageURL = updated, public
		}
	}

	if post.PrimaryPostID == "" {
		fbID, err := e.deps.Primary.PublishPhoto(ctx, creds, captionOr(post.PrimaryCaption, post.BaseCaption), imageURL)
		if err != nil {
			return nil, fmt.Errorf("facebook publish: %w", err)
		}
		updated, err := e.deps.Posts.Update(ctx, post.ID, posts.Patch{PrimaryPostID: &fbID})
		if err != nil {
			return nil, fmt.Errorf("persist facebook post id %s: %w", fbID, err)
		}
		post = updated
		log.Infof("[PUBLISH] published to facebook as %s", fbID)
	} else {
		log.Infof("[PUBLISH] already on facebook (%s), skipping primary", post.PrimaryPostID)
	}

	if post.SecondaryMediaID == "" {
		if creds.HasSecondary() && e.deps.Secondary != nil {
			igID, err := e.deps.Secondary.Publish(ctx, creds.InstagramBusinessID, creds.PageToken,
				captionOr(post.SecondaryCaption, post.BaseCaption), imageURL)
			if err != nil {
				return nil, fmt.Errorf("instagram publish: %w", err)
			}
			updated, err := e.deps.Posts.Update(ctx, post.ID, posts.Patch{SecondaryMediaID: &igID})
			if err != nil {
				return nil, fmt.Errorf("persist instagram media id %s: %w", igID, err)
			}
			post = updated
			log.Infof("[PUBLISH] published to instagram as %s", igID)
		} else {
			log.Warn("[PUBLISH] no instagram account configured, facebook only")
		}
	}

	at := e.now()
	published, ok, err := e.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusQueued}, posts.StatusPublished,
		posts.Patch{PublishedAt: &at, ErrorMessage: posts.Ptr("")})
	if err != nil {
		return nil, fmt.Errorf("mark published: %w", err)
	}
	if !ok {
		log.Warn("[PUBLISH] post left the queue while publishing")
		return nil, nil
	}
	return published, nil
}

// fail puts the post back in line with a fresh randomized delay.
func (e *Engine) fail(ctx context.Context, policy *tenants.TenantPolicy, post *posts.Post, cause error) {
	retryAt := e.now().Add(e.jitter(policy.SpacingMin, policy.SpacingMax))
	msg := cause.Error()
	_, ok, err := e.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusQueued}, posts.StatusManagerApproved,
		posts.Patch{ScheduledFor: &retryAt, IncrementRetry: true, ErrorMessage: &msg})
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] failed to reschedule post %s after error %q", post.ID, msg)
		return
	}
	if !ok {
		return
	}
	logrus.WithError(cause).Warnf("[SCHEDULER] post %s failed, retrying at %s", post.ID, retryAt.Format(time.RFC3339))
}

// park stops automatic retries until an operator calls Retry.
func (e *Engine) park(ctx context.Context, post *posts.Post, cause error) {
	msg := cause.Error()
	parked, ok, err := e.deps.Posts.Transition(ctx, post.ID,
		[]posts.Status{posts.StatusManagerApproved, posts.StatusQueued}, posts.StatusFailed,
		posts.Patch{ClearScheduledFor: true, ErrorMessage: &msg})
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] failed to park post %s", post.ID)
		return
	}
	if !ok {
		return
	}
	logrus.Errorf("[SCHEDULER] post %s of tenant %s parked: %s", post.ID, post.TenantID, msg)
	e.notify(ctx, parked.ApproverContact, postParked(parked, msg))
}

func (e *Engine) notify(ctx context.Context, to, text string) {
	if e.deps.Notifier == nil || to == "" {
		return
	}
	if err := e.deps.Notifier.SendText(ctx, to, text); err != nil {
		logrus.WithError(err).Warnf("[SCHEDULER] failed to notify %s", to)
	}
}

// EnqueuePost schedules an approved post at now plus the tenant's randomized spacing.
func (e *Engine) EnqueuePost(ctx context.Context, postID string) (time.Time, error) {
	post, err := e.deps.Posts.Get(ctx, postID)
	if err != nil {
		return time.Time{}, err
	}
	policy, err := e.deps.Policies.Get(ctx, post.TenantID)
	if err != nil {
		return time.Time{}, fmt.Errorf("load policy for tenant %s: %w", post.TenantID, err)
	}

	when := e.now().Add(e.jitter(policy.SpacingMin, policy.SpacingMax))
	_, ok, err := e.deps.Posts.Transition(ctx, postID,
		[]posts.Status{posts.StatusManagerApproved}, posts.StatusManagerApproved,
		posts.Patch{ScheduledFor: &when})
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: post %s is %s", posts.ErrInvalidTransition, postID, post.Status)
	}
	logrus.Infof("[SCHEDULER] post %s scheduled for %s", postID, when.Format(time.RFC3339))
	return when, nil
}

// Recover reschedules posts whose slot passed while the engine was down.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	now := e.now()
	statuses := []posts.Status{posts.StatusManagerApproved, posts.StatusQueued, posts.StatusFailed}
	overdue, err := e.deps.Posts.Overdue(ctx, statuses, now, e.opts.MaxRecoveryRetries)
	if err != nil {
		return 0, fmt.Errorf("load overdue posts: %w", err)
	}

	recovered := 0
	for _, post := range overdue {
		policy, err := e.deps.Policies.Get(ctx, post.TenantID)
		if err != nil {
			logrus.WithError(err).Warnf("[SCHEDULER] skipping recovery of post %s", post.ID)
			continue
		}
		when := now.Add(e.jitter(policy.SpacingMin, policy.SpacingMax))
		_, ok, err := e.deps.Posts.Transition(ctx, post.ID, statuses, posts.StatusManagerApproved,
			posts.Patch{ScheduledFor: &when, IncrementRetry: true})
		if err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] failed to recover post %s", post.ID)
			continue
		}
		if ok {
			recovered++
			logrus.Infof("[SCHEDULER] recovered post %s (was %s), now due %s", post.ID, post.Status, when.Format(time.RFC3339))
		}
	}
	e.deps.Metrics.recovered(recovered)
	return recovered, nil
}

// Retry re-enqueues a parked post after its tenant has been fixed.
func (e *Engine) Retry(ctx context.Context, postID string) (*posts.Post, error) {
	post, err := e.deps.Posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != posts.StatusFailed {
		return nil, fmt.Errorf("%w: post %s is %s", domain.ErrNotRetryable, postID, post.Status)
	}
	policy, err := e.deps.Policies.Get(ctx, post.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load policy for tenant %s: %w", post.TenantID, err)
	}

	when := e.now().Add(e.jitter(policy.SpacingMin, policy.SpacingMax))
	updated, ok, err := e.deps.Posts.Transition(ctx, postID,
		[]posts.Status{posts.StatusFailed}, posts.StatusManagerApproved,
		posts.Patch{ScheduledFor: &when, RetryCount: posts.Ptr(0), ErrorMessage: posts.Ptr("")})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: post %s changed concurrently", domain.ErrNotRetryable, postID)
	}
	logrus.Infof("[SCHEDULER] post %s re-enqueued by operator for %s", postID, when.Format(time.RFC3339))
	return updated, nil
}

func captionOr(caption, fallback string) string {
	if caption != "" {
		return caption
	}
	return fallback
}
