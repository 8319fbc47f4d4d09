package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-post/approval/domain"
	"gorm.io/gorm"
)

type credentialModel struct {
	Token      string    `gorm:"primaryKey"`
	PostID     string    `gorm:"not null;index"`
	ApproverID string    `gorm:"not null"`
	TenantID   string    `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	UsedAt     *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

func (credentialModel) TableName() string {
	return "approval_credentials"
}

type CredentialGormRepository struct {
	db *gorm.DB
}

func NewCredentialGormRepository(db *gorm.DB) *CredentialGormRepository {
	return &CredentialGormRepository{db: db}
}

func (r *CredentialGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&credentialModel{})
}

func (r *CredentialGormRepository) Create(ctx context.Context, cred *domain.Credential) error {
	m := credentialModel{
		Token:      cred.Token,
		PostID:     cred.PostID,
		ApproverID: cred.ApproverID,
		TenantID:   cred.TenantID,
		ExpiresAt:  cred.ExpiresAt.UTC(),
		UsedAt:     cred.UsedAt,
		CreatedAt:  cred.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *CredentialGormRepository) Get(ctx context.Context, token string) (*domain.Credential, error) {
	var m credentialModel
	if err := r.db.WithContext(ctx).First(&m, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCredentialInvalid
		}
		return nil, err
	}
	return &domain.Credential{
		Token:      m.Token,
		PostID:     m.PostID,
		ApproverID: m.ApproverID,
		TenantID:   m.TenantID,
		ExpiresAt:  m.ExpiresAt.UTC(),
		UsedAt:     m.UsedAt,
		CreatedAt:  m.CreatedAt.UTC(),
	}, nil
}

func (r *CredentialGormRepository) MarkUsed(ctx context.Context, token string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&credentialModel{}).Where("token = ?", token).Update("used_at", at.UTC()).Error
}

func (r *CredentialGormRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", before.UTC()).Delete(&credentialModel{})
	return res.RowsAffected, res.Error
}
