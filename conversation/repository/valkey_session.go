package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/AzielCF/az-post/infrastructure/valkey"
)

// ValkeySessionStore implements domain.SessionStore on Valkey so drafts and consent sessions
// survive restarts and are shared between replicas.
type ValkeySessionStore struct {
	client *valkey.Client
}

func NewValkeySessionStore(client *valkey.Client) *ValkeySessionStore {
	return &ValkeySessionStore{client: client}
}

func (s *ValkeySessionStore) draftKey(key string) string {
	return s.client.Key("draft", key)
}

func (s *ValkeySessionStore) consentKey(key string) string {
	return s.client.Key("consent", key)
}

func (s *ValkeySessionStore) SaveDraft(ctx context.Context, key string, draft *domain.Draft, ttl time.Duration) error {
	if err := s.client.SetJSON(ctx, s.draftKey(key), draft, ttl); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *ValkeySessionStore) GetDraft(ctx context.Context, key string) (*domain.Draft, error) {
	var d domain.Draft
	found, err := s.client.GetJSON(ctx, s.draftKey(key), &d)
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &d, nil
}

func (s *ValkeySessionStore) DeleteDraft(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.draftKey(key))
}

func (s *ValkeySessionStore) SaveConsent(ctx context.Context, key string, session *domain.ConsentSession, ttl time.Duration) error {
	if err := s.client.SetJSON(ctx, s.consentKey(key), session, ttl); err != nil {
		return fmt.Errorf("failed to save consent session: %w", err)
	}
	return nil
}

func (s *ValkeySessionStore) GetConsent(ctx context.Context, key string) (*domain.ConsentSession, error) {
	var c domain.ConsentSession
	found, err := s.client.GetJSON(ctx, s.consentKey(key), &c)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

func (s *ValkeySessionStore) DeleteConsent(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.consentKey(key))
}
