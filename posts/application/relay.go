package application

import (
	"context"
	"time"

	"github.com/AzielCF/az-post/posts/domain"
	"github.com/sirupsen/logrus"
)

// OutboxRelay copies committed post changes from the outbox into the read mirror.
// The primary store stays authoritative; a failed mirror write is retried on the next pass.
type OutboxRelay struct {
	outbox      domain.IOutbox
	mirror      domain.Mirror
	interval    time.Duration
	batchSize   int
	maxAttempts int
	retention   time.Duration
	lastPurge   time.Time
	now         func() time.Time
}

type RelayOptions struct {
	Interval  time.Duration
	BatchSize int
	// MaxAttempts is how many times an event may fail before it is dead-lettered.
	MaxAttempts int
	// Retention is how long applied events are kept before purging.
	Retention time.Duration
}

func NewOutboxRelay(outbox domain.IOutbox, mirror domain.Mirror, opts RelayOptions) *OutboxRelay {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Retention <= 0 {
		opts.Retention = 72 * time.Hour
	}
	return &OutboxRelay{
		outbox:      outbox,
		mirror:      mirror,
		interval:    opts.Interval,
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
		retention:   opts.Retention,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run polls the outbox until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logrus.Infof("[MIRROR] Outbox relay started (interval %s)", r.interval)
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("[MIRROR] Relay pass failed")
		}
		r.purgeIfDue(ctx)
		select {
		case <-ctx.Done():
			logrus.Info("[MIRROR] Outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce applies one batch of pending events in order and returns how many were applied.
// Processing stops at the first failure so a post's events are never applied out of order,
// unless the event has used up its attempts, in which case it is dead-lettered and skipped.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.PendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	applied := make([]int64, 0, len(events))
	var failure error
	for _, ev := range events {
		err := r.mirror.Apply(ctx, ev.Snapshot)
		if err == nil {
			applied = append(applied, ev.ID)
			continue
		}
		if ev.Attempts+1 >= r.maxAttempts {
			logrus.WithError(err).Errorf("[MIRROR] Event %d for post %s failed %d times, dead-lettered", ev.ID, ev.PostID, ev.Attempts+1)
			if markErr := r.outbox.MarkDead(ctx, ev.ID, err.Error(), r.now()); markErr != nil {
				logrus.WithError(markErr).Error("[MIRROR] Could not dead-letter event")
				failure = markErr
				break
			}
			continue
		}
		failure = err
		logrus.WithError(err).Warnf("[MIRROR] Could not apply event %d for post %s", ev.ID, ev.PostID)
		if markErr := r.outbox.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
			logrus.WithError(markErr).Error("[MIRROR] Could not record relay failure")
		}
		break
	}

	if err := r.outbox.MarkApplied(ctx, applied, r.now()); err != nil {
		return 0, err
	}
	if len(applied) > 0 {
		logrus.Debugf("[MIRROR] Applied %d outbox events", len(applied))
	}
	return len(applied), failure
}

// Purge removes applied events older than the retention window.
func (r *OutboxRelay) Purge(ctx context.Context) (int64, error) {
	n, err := r.outbox.PurgeApplied(ctx, r.now().Add(-r.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logrus.Infof("[MIRROR] Purged %d applied outbox events", n)
	}
	return n, nil
}

func (r *OutboxRelay) purgeIfDue(ctx context.Context) {
	now := r.now()
	if now.Sub(r.lastPurge) < time.Hour {
		return
	}
	r.lastPurge = now
	if _, err := r.Purge(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Warn("[MIRROR] Outbox purge failed")
	}
}

// NopMirror discards snapshots. Used when mirroring is disabled.
type NopMirror struct{}

func (NopMirror) Apply(context.Context, domain.Post) error { return nil }
