package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-post/posts/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const maxSequenceAttempts = 5

// --- Persistence Models ---

type postModel struct {
	ID                 string `gorm:"primaryKey"`
	TenantID           string `gorm:"not null;uniqueIndex:idx_posts_tenant_sequence,priority:1;index:idx_posts_tenant_status,priority:1"`
	Sequence           int64  `gorm:"not null;uniqueIndex:idx_posts_tenant_sequence,priority:2"`
	ContributorID      string `gorm:"index:idx_posts_contributor"`
	ContributorName    string
	ContributorContact string
	ApproverID         string `gorm:"index:idx_posts_approver"`
	ApproverContact    string
	ImageURL           string `gorm:"type:text"`
	Note               string `gorm:"type:text"`
	BaseCaption        string `gorm:"type:text"`
	PrimaryCaption     string `gorm:"type:text"`
	SecondaryCaption   string `gorm:"type:text"`
	Hashtags           string `gorm:"type:text;default:'[]'"` // JSON
	CallToAction       string
	Status             string     `gorm:"not null;index:idx_posts_tenant_status,priority:2;index:idx_posts_status_schedule,priority:1"`
	ScheduledFor       *time.Time `gorm:"index:idx_posts_status_schedule,priority:2"`
	PublishedAt        *time.Time
	RetryCount         int `gorm:"not null;default:0"`
	ErrorMessage       string
	DeniedReason       string
	ApprovedBy         string
	ApprovedAt         *time.Time
	PrimaryPostID      string
	SecondaryMediaID   string
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (postModel) TableName() string {
	return "posts"
}

// tenantSequenceModel holds the last sequence number handed out per tenant.
type tenantSequenceModel struct {
	TenantID string `gorm:"primaryKey"`
	Value    int64  `gorm:"not null"`
}

func (tenantSequenceModel) TableName() string {
	return "tenant_sequences"
}

type postEventModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	PostID    string `gorm:"not null;index"`
	TenantID  string `gorm:"not null"`
	Kind      string `gorm:"not null"`
	Snapshot  string `gorm:"type:text;not null"`
	Attempts  int    `gorm:"not null;default:0"`
	LastError string
	CreatedAt time.Time  `gorm:"not null"`
	AppliedAt *time.Time `gorm:"index"`
	DeadAt    *time.Time `gorm:"index"`
}

func (postEventModel) TableName() string {
	return "post_events"
}

// --- Repository Implementation ---

type PostGormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostGormRepository(db *gorm.DB) *PostGormRepository {
	return &PostGormRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *PostGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&postModel{}, &tenantSequenceModel{}, &postEventModel{})
}

// Create assigns the next tenant sequence number and stores the post with its outbox event,
// all inside one transaction. A unique-index collision on (tenant_id, sequence) is retried.
func (r *PostGormRepository) Create(ctx context.Context, post *domain.Post) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.Status == "" {
		post.Status = domain.StatusManagerPending
	}
	now := r.now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.Status.IsTerminal() {
		post.ScheduledFor = nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxSequenceAttempts; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			seq, err := nextSequence(tx, post.TenantID)
			if err != nil {
				return err
			}
			post.Sequence = seq

			m, err := toPostModel(post)
			if err != nil {
				return err
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			return appendEvent(tx, domain.EventCreated, post, now)
		})
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		lastErr = err
		logrus.Warnf("[POSTS] sequence collision for tenant %s (attempt %d): %v", post.TenantID, attempt, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrSequenceConflict, lastErr)
}

// nextSequence increments the tenant counter row; the row lock serializes concurrent creators.
func nextSequence(tx *gorm.DB, tenantID string) (int64, error) {
	res := tx.Model(&tenantSequenceModel{}).
		Where("tenant_id = ?", tenantID).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		// first post for this tenant: seed from any rows written before the counter existed
		var current int64
		if err := tx.Model(&postModel{}).
			Where("tenant_id = ?", tenantID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&current).Error; err != nil {
			return 0, err
		}
		if err := tx.Create(&tenantSequenceModel{TenantID: tenantID, Value: current + 1}).Error; err != nil {
			return 0, err
		}
		return current + 1, nil
	}

	var seq tenantSequenceModel
	if err := tx.First(&seq, "tenant_id = ?", tenantID).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}

func (r *PostGormRepository) Get(ctx context.Context, id string) (*domain.Post, error) {
	return getPost(r.db.WithContext(ctx), id)
}

func getPost(tx *gorm.DB, id string) (*domain.Post, error) {
	var m postModel
	if err := tx.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return fromPostModel(m)
}

// Update writes the allow-listed fields carried by patch.
func (r *PostGormRepository) Update(ctx context.Context, id string, patch domain.Patch) (*domain.Post, error) {
	var updated *domain.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getPost(tx, id)
		if err != nil {
			return err
		}
		if patch.Status != nil && *patch.Status != current.Status && !domain.CanTransition(current.Status, *patch.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, *patch.Status)
		}

		now := r.now()
		cols, err := patchColumns(patch, now)
		if err != nil {
			return err
		}
		if patch.Status != nil && patch.Status.IsTerminal() {
			cols["scheduled_for"] = nil
		}
		if err := tx.Model(&postModel{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return err
		}

		updated, err = getPost(tx, id)
		if err != nil {
			return err
		}
		return appendEvent(tx, domain.EventUpdated, updated, now)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition is a conditional update: the row only changes while its status is one of from.
func (r *PostGormRepository) Transition(ctx context.Context, id string, from []domain.Status, to domain.Status, patch domain.Patch) (*domain.Post, bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		if s == to || domain.CanTransition(s, to) {
			allowed = append(allowed, string(s))
		}
	}
	if len(allowed) == 0 {
		return nil, false, fmt.Errorf("%w: %v -> %s", domain.ErrInvalidTransition, from, to)
	}

	var (
		updated *domain.Post
		applied bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		patch.Status = &to
		cols, err := patchColumns(patch, now)
		if err != nil {
			return err
		}
		if to.IsTerminal() {
			cols["scheduled_for"] = nil
		}

		res := tx.Model(&postModel{}).Where("id = ? AND status IN ?", id, allowed).Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&postModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrPostNotFound
			}
			return nil
		}

		applied = true
		updated, err = getPost(tx, id)
		if err != nil {
			return err
		}
		return appendEvent(tx, domain.EventUpdated, updated, now)
	})
	if err != nil {
		return nil, false, err
	}
	return updated, applied, nil
}

// --- Queries ---

func (r *PostGormRepository) TenantsWithScheduled(ctx context.Context) ([]string, error) {
	var tenants []string
	err := r.db.WithContext(ctx).Model(&postModel{}).
		Where("status = ? AND scheduled_for IS NOT NULL", string(domain.StatusManagerApproved)).
		Distinct("tenant_id").
		Order("tenant_id ASC").
		Pluck("tenant_id", &tenants).Error
	return tenants, err
}

func (r *PostGormRepository) DueForTenant(ctx context.Context, tenantID string, now time.Time) ([]*domain.Post, error) {
	var models []postModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?",
			tenantID, string(domain.StatusManagerApproved), now.UTC()).
		Order("scheduled_for ASC, sequence ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromPostModels(models)
}

func (r *PostGormRepository) Overdue(ctx context.Context, statuses []domain.Status, now time.Time, maxRetries int) ([]*domain.Post, error) {
	var models []postModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND scheduled_for IS NOT NULL AND scheduled_for < ? AND retry_count < ?",
			statusStrings(statuses), now.UTC(), maxRetries).
		Order("scheduled_for ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromPostModels(models)
}

func (r *PostGormRepository) FindPendingForApprover(ctx context.Context, approverID, approverContact string) (*domain.Post, error) {
	return r.findForApprover(ctx, domain.StatusManagerPending, approverID, approverContact)
}

func (r *PostGormRepository) FindAwaitingReason(ctx context.Context, approverID, approverContact string) (*domain.Post, error) {
	return r.findForApprover(ctx, domain.StatusAwaitingDenialReason, approverID, approverContact)
}

func (r *PostGormRepository) findForApprover(ctx context.Context, status domain.Status, approverID, approverContact string) (*domain.Post, error) {
	q := r.db.WithContext(ctx).Where("status = ?", string(status))
	switch {
	case approverID != "" && approverContact != "":
		q = q.Where("(approver_id = ? OR approver_contact = ?)", approverID, approverContact)
	case approverID != "":
		q = q.Where("approver_id = ?", approverID)
	case approverContact != "":
		q = q.Where("approver_contact = ?", approverContact)
	default:
		return nil, domain.ErrPostNotFound
	}

	var m postModel
	if err := q.Order("created_at DESC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return fromPostModel(m)
}

func (r *PostGormRepository) FindLatestForContributor(ctx context.Context, contributorID string, statuses []domain.Status) (*domain.Post, error) {
	var m postModel
	err := r.db.WithContext(ctx).
		Where("contributor_id = ? AND status IN ?", contributorID, statusStrings(statuses)).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return fromPostModel(m)
}

func (r *PostGormRepository) List(ctx context.Context, filter domain.Filter) ([]*domain.Post, error) {
	q := r.db.WithContext(ctx).Model(&postModel{})
	if filter.TenantID != "" {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(filter.Statuses))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []postModel
	if err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&models).Error; err != nil {
		return nil, err
	}
	return fromPostModels(models)
}

// --- Outbox ---

func appendEvent(tx *gorm.DB, kind domain.EventKind, post *domain.Post, at time.Time) error {
	snapshot, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal outbox snapshot: %w", err)
	}
	return tx.Create(&postEventModel{
		PostID:    post.ID,
		TenantID:  post.TenantID,
		Kind:      string(kind),
		Snapshot:  string(snapshot),
		CreatedAt: at,
	}).Error
}

func (r *PostGormRepository) PendingEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []postEventModel
	if err := r.db.WithContext(ctx).Where("applied_at IS NULL AND dead_at IS NULL").Order("id ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Event, 0, len(models))
	for _, m := range models {
		ev := &domain.Event{
			ID:        m.ID,
			PostID:    m.PostID,
			TenantID:  m.TenantID,
			Kind:      domain.EventKind(m.Kind),
			Attempts:  m.Attempts,
			LastError: m.LastError,
			CreatedAt: m.CreatedAt,
			AppliedAt: m.AppliedAt,
			DeadAt:    m.DeadAt,
		}
		if err := json.Unmarshal([]byte(m.Snapshot), &ev.Snapshot); err != nil {
			return nil, fmt.Errorf("outbox event %d: %w", m.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *PostGormRepository) MarkApplied(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&postEventModel{}).Where("id IN ?", ids).Update("applied_at", at.UTC()).Error
}

func (r *PostGormRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.db.WithContext(ctx).Model(&postEventModel{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
	}).Error
}

func (r *PostGormRepository) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&postEventModel{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
		"dead_at":    at.UTC(),
	}).Error
}

// PurgeApplied deletes mirrored events applied before the cutoff. Dead events are kept for inspection.
func (r *PostGormRepository) PurgeApplied(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("applied_at IS NOT NULL AND applied_at < ?", before.UTC()).Delete(&postEventModel{})
	return res.RowsAffected, res.Error
}

// --- Mappers ---

// patchColumns turns a patch into the column map for an UPDATE. Only allow-listed columns appear.
func patchColumns(p domain.Patch, now time.Time) (map[string]any, error) {
	cols := map[string]any{"updated_at": now}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.ScheduledFor != nil {
		cols["scheduled_for"] = p.ScheduledFor.UTC()
	}
	if p.ClearScheduledFor {
		cols["scheduled_for"] = nil
	}
	if p.PublishedAt != nil {
		cols["published_at"] = p.PublishedAt.UTC()
	}
	if p.RetryCount != nil {
		cols["retry_count"] = *p.RetryCount
	}
	if p.IncrementRetry {
		cols["retry_count"] = gorm.Expr("retry_count + 1")
	}
	if p.ErrorMessage != nil {
		cols["error_message"] = *p.ErrorMessage
	}
	if p.DeniedReason != nil {
		cols["denied_reason"] = *p.DeniedReason
	}
	if p.ApprovedBy != nil {
		cols["approved_by"] = *p.ApprovedBy
	}
	if p.ApprovedAt != nil {
		cols["approved_at"] = p.ApprovedAt.UTC()
	}
	if p.ApproverID != nil {
		cols["approver_id"] = *p.ApproverID
	}
	if p.ApproverContact != nil {
		cols["approver_contact"] = *p.ApproverContact
	}
	if p.ImageURL != nil {
		cols["image_url"] = *p.ImageURL
	}
	if p.BaseCaption != nil {
		cols["base_caption"] = *p.BaseCaption
	}
	if p.PrimaryCaption != nil {
		cols["primary_caption"] = *p.PrimaryCaption
	}
	if p.SecondaryCaption != nil {
		cols["secondary_caption"] = *p.SecondaryCaption
	}
	if p.Hashtags != nil {
		data, err := json.Marshal(p.Hashtags)
		if err != nil {
			return nil, err
		}
		cols["hashtags"] = string(data)
	}
	if p.CallToAction != nil {
		cols["call_to_action"] = *p.CallToAction
	}
	if p.PrimaryPostID != nil {
		cols["primary_post_id"] = *p.PrimaryPostID
	}
	if p.SecondaryMediaID != nil {
		cols["secondary_media_id"] = *p.SecondaryMediaID
	}
	return cols, nil
}

func toPostModel(p *domain.Post) (postModel, error) {
	tags := []byte("[]")
	if p.Hashtags != nil {
		var err error
		if tags, err = json.Marshal(p.Hashtags); err != nil {
			return postModel{}, err
		}
	}
	return postModel{
		ID:                 p.ID,
		TenantID:           p.TenantID,
		Sequence:           p.Sequence,
		ContributorID:      p.ContributorID,
		ContributorName:    p.ContributorName,
		ContributorContact: p.ContributorContact,
		ApproverID:         p.ApproverID,
		ApproverContact:    p.ApproverContact,
		ImageURL:           p.ImageURL,
		Note:               p.Note,
		BaseCaption:        p.BaseCaption,
		PrimaryCaption:     p.PrimaryCaption,
		SecondaryCaption:   p.SecondaryCaption,
		Hashtags:           string(tags),
		CallToAction:       p.CallToAction,
		Status:             string(p.Status),
		ScheduledFor:       utcPtr(p.ScheduledFor),
		PublishedAt:        utcPtr(p.PublishedAt),
		RetryCount:         p.RetryCount,
		ErrorMessage:       p.ErrorMessage,
		DeniedReason:       p.DeniedReason,
		ApprovedBy:         p.ApprovedBy,
		ApprovedAt:         utcPtr(p.ApprovedAt),
		PrimaryPostID:      p.PrimaryPostID,
		SecondaryMediaID:   p.SecondaryMediaID,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

func fromPostModel(m postModel) (*domain.Post, error) {
	var tags []string
	if m.Hashtags != "" {
		if err := json.Unmarshal([]byte(m.Hashtags), &tags); err != nil {
			return nil, fmt.Errorf("post %s: bad hashtags: %w", m.ID, err)
		}
	}
	return &domain.Post{
		ID:                 m.ID,
		TenantID:           m.TenantID,
		Sequence:           m.Sequence,
		ContributorID:      m.ContributorID,
		ContributorName:    m.ContributorName,
		ContributorContact: m.ContributorContact,
		ApproverID:         m.ApproverID,
		ApproverContact:    m.ApproverContact,
		ImageURL:           m.ImageURL,
		Note:               m.Note,
		BaseCaption:        m.BaseCaption,
		PrimaryCaption:     m.PrimaryCaption,
		SecondaryCaption:   m.SecondaryCaption,
		Hashtags:           tags,
		CallToAction:       m.CallToAction,
		Status:             domain.Status(m.Status),
		ScheduledFor:       utcPtr(m.ScheduledFor),
		PublishedAt:        utcPtr(m.PublishedAt),
		RetryCount:         m.RetryCount,
		ErrorMessage:       m.ErrorMessage,
		DeniedReason:       m.DeniedReason,
		ApprovedBy:         m.ApprovedBy,
		ApprovedAt:         utcPtr(m.ApprovedAt),
		PrimaryPostID:      m.PrimaryPostID,
		SecondaryMediaID:   m.SecondaryMediaID,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}, nil
}

func fromPostModels(models []postModel) ([]*domain.Post, error) {
	out := make([]*domain.Post, 0, len(models))
	for _, m := range models {
		p, err := fromPostModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
