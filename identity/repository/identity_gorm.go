package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AzielCF/az-post/identity/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type identityModel struct {
	ID              string `gorm:"primaryKey"`
	TenantID        string `gorm:"index:idx_identities_tenant_role,priority:1;not null"`
	Role            string `gorm:"index:idx_identities_tenant_role,priority:2;not null;default:'contributor'"`
	Name            string
	InstagramHandle string
	Phone           string `gorm:"index:idx_identities_phone"`
	ChatID          string `gorm:"index:idx_identities_chat"`
	ConsentGranted  bool   `gorm:"default:false"`
	ConsentAt       *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (identityModel) TableName() string {
	return "identities"
}

// --- Repository Implementation ---

type IdentityGormRepository struct {
	db *gorm.DB
}

func NewIdentityGormRepository(db *gorm.DB) *IdentityGormRepository {
	return &IdentityGormRepository{db: db}
}

func (r *IdentityGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&identityModel{})
}

func (r *IdentityGormRepository) Create(ctx context.Context, identity *domain.ContributorIdentity) error {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	if identity.Role == "" {
		identity.Role = domain.RoleContributor
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	if identity.Phone != "" {
		var count int64
		if err := r.db.WithContext(ctx).Model(&identityModel{}).Where("phone = ?", identity.Phone).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrDuplicateIdentity
		}
	}

	m := toIdentityModel(identity)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "duplicate key value") {
			return domain.ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

func (r *IdentityGormRepository) GetByID(ctx context.Context, id string) (*domain.ContributorIdentity, error) {
	var m identityModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, err
	}
	return fromIdentityModel(m), nil
}

func (r *IdentityGormRepository) GetByContact(ctx context.Context, contact string) (*domain.ContributorIdentity, error) {
	if contact == "" {
		return nil, domain.ErrIdentityNotFound
	}
	var m identityModel
	// approvers first so a person registered under both roles acts as approver
	err := r.db.WithContext(ctx).
		Where("phone = ? OR chat_id = ?", contact, contact).
		Order("CASE WHEN role = 'approver' THEN 0 ELSE 1 END, created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, err
	}
	return fromIdentityModel(m), nil
}

func (r *IdentityGormRepository) FirstApprover(ctx context.Context, tenantID string) (*domain.ContributorIdentity, error) {
	var m identityModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND role = ?", tenantID, string(domain.RoleApprover)).
		Order("created_at ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrApproverNotFound
		}
		return nil, err
	}
	return fromIdentityModel(m), nil
}

func (r *IdentityGormRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.ContributorIdentity, error) {
	var models []identityModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.ContributorIdentity, 0, len(models))
	for _, m := range models {
		out = append(out, fromIdentityModel(m))
	}
	return out, nil
}

func (r *IdentityGormRepository) MarkConsent(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	result := r.db.WithContext(ctx).Model(&identityModel{}).Where("id = ?", id).Updates(map[string]any{
		"consent_granted": true,
		"consent_at":      at,
		"updated_at":      time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

// --- Mappers ---

func toIdentityModel(c *domain.ContributorIdentity) identityModel {
	return identityModel{
		ID:              c.ID,
		TenantID:        c.TenantID,
		Role:            string(c.Role),
		Name:            c.Name,
		InstagramHandle: c.InstagramHandle,
		Phone:           c.Phone,
		ChatID:          c.ChatID,
		ConsentGranted:  c.ConsentGranted,
		ConsentAt:       c.ConsentAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromIdentityModel(m identityModel) *domain.ContributorIdentity {
	return &domain.ContributorIdentity{
		ID:              m.ID,
		TenantID:        m.TenantID,
		Role:            domain.Role(m.Role),
		Name:            m.Name,
		InstagramHandle: m.InstagramHandle,
		Phone:           m.Phone,
		ChatID:          m.ChatID,
		ConsentGranted:  m.ConsentGranted,
		ConsentAt:       m.ConsentAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
