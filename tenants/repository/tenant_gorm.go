package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-post/pkg/crypto"
	"github.com/AzielCF/az-post/tenants/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Persistence Model ---

type tenantModel struct {
	ID                  string `gorm:"primaryKey"`
	Name                string `gorm:"not null;default:''"`
	Timezone            string
	PostingStartTime    string
	PostingEndTime      string
	SpacingMin          int  `gorm:"default:0"`
	SpacingMax          int  `gorm:"default:0"`
	RequireApproval     bool `gorm:"default:false"`
	RequireConsent      bool `gorm:"default:false"`
	FacebookPageID      string
	FacebookPageToken   string `gorm:"type:text"` // sealed
	InstagramBusinessID string
	InstagramHandle     string
	BookingURL          string
	DefaultHashtags     string `gorm:"type:text;default:'[]'"` // JSON
	DefaultCTA          string
	Tone                string
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (tenantModel) TableName() string {
	return "tenants"
}

// --- Repository Implementation ---

type TenantGormRepository struct {
	db     *gorm.DB
	sealer *crypto.Sealer
}

// NewTenantGormRepository builds the repository. Page tokens are sealed with sealer before storage.
func NewTenantGormRepository(db *gorm.DB, sealer *crypto.Sealer) *TenantGormRepository {
	if sealer == nil {
		sealer, _ = crypto.NewSealer("")
	}
	return &TenantGormRepository{db: db, sealer: sealer}
}

func (r *TenantGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&tenantModel{})
}

// Save inserts or fully replaces a tenant record.
func (r *TenantGormRepository) Save(ctx context.Context, t *domain.Tenant) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTenant, err)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	m, err := r.toTenantModel(t)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (r *TenantGormRepository) FindByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var m tenantModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return r.fromTenantModel(m)
}

func (r *TenantGormRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	var models []tenantModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Tenant, 0, len(models))
	for _, m := range models {
		t, err := r.fromTenantModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// --- Mappers ---

func (r *TenantGormRepository) toTenantModel(t *domain.Tenant) (tenantModel, error) {
	tags, err := json.Marshal(t.DefaultHashtags)
	if err != nil {
		return tenantModel{}, err
	}
	if t.DefaultHashtags == nil {
		tags = []byte("[]")
	}
	token, err := r.sealer.Seal(t.FacebookPageToken)
	if err != nil {
		return tenantModel{}, fmt.Errorf("seal page token: %w", err)
	}
	return tenantModel{
		ID:                  t.ID,
		Name:                t.Name,
		Timezone:            t.Timezone,
		PostingStartTime:    t.PostingStart,
		PostingEndTime:      t.PostingEnd,
		SpacingMin:          t.SpacingMin,
		SpacingMax:          t.SpacingMax,
		RequireApproval:     t.RequireApproval,
		RequireConsent:      t.RequireConsent,
		FacebookPageID:      t.FacebookPageID,
		FacebookPageToken:   token,
		InstagramBusinessID: t.InstagramBusinessID,
		InstagramHandle:     t.InstagramHandle,
		BookingURL:          t.BookingURL,
		DefaultHashtags:     string(tags),
		DefaultCTA:          t.DefaultCTA,
		Tone:                t.Tone,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}, nil
}

func (r *TenantGormRepository) fromTenantModel(m tenantModel) (*domain.Tenant, error) {
	var tags []string
	if m.DefaultHashtags != "" {
		if err := json.Unmarshal([]byte(m.DefaultHashtags), &tags); err != nil {
			return nil, fmt.Errorf("tenant %s: bad default_hashtags: %w", m.ID, err)
		}
	}
	token, err := r.sealer.Open(m.FacebookPageToken)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: open page token: %w", m.ID, err)
	}
	return &domain.Tenant{
		ID:                  m.ID,
		Name:                m.Name,
		Timezone:            m.Timezone,
		PostingStart:        m.PostingStartTime,
		PostingEnd:          m.PostingEndTime,
		SpacingMin:          m.SpacingMin,
		SpacingMax:          m.SpacingMax,
		RequireApproval:     m.RequireApproval,
		RequireConsent:      m.RequireConsent,
		FacebookPageID:      m.FacebookPageID,
		FacebookPageToken:   token,
		InstagramBusinessID: m.InstagramBusinessID,
		InstagramHandle:     m.InstagramHandle,
		BookingURL:          m.BookingURL,
		DefaultHashtags:     tags,
		DefaultCTA:          m.DefaultCTA,
		Tone:                m.Tone,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}, nil
}
