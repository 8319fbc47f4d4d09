package repository

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-post/conversation/domain"
	"github.com/sirupsen/logrus"
)

// MemorySessionStore implements domain.SessionStore with in-process maps.
// State is lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	drafts   map[string]memoryEntry[domain.Draft]
	consents map[string]memoryEntry[domain.ConsentSession]
	stopCh   chan struct{}
	stopOnce sync.Once
}

type memoryEntry[T any] struct {
	data     T
	expireAt time.Time
}

func (e memoryEntry[T]) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// NewMemorySessionStore starts a cleanup goroutine that evicts expired entries. Call Close to stop it.
func NewMemorySessionStore() *MemorySessionStore {
	ms := &MemorySessionStore{
		drafts:   make(map[string]memoryEntry[domain.Draft]),
		consents: make(map[string]memoryEntry[domain.ConsentSession]),
		stopCh:   make(chan struct{}),
	}
	go ms.cleanupLoop(30 * time.Second)
	return ms
}

func (ms *MemorySessionStore) Close() {
	ms.stopOnce.Do(func() { close(ms.stopCh) })
}

func (ms *MemorySessionStore) SaveDraft(_ context.Context, key string, draft *domain.Draft, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.drafts[key] = memoryEntry[domain.Draft]{data: *draft, expireAt: time.Now().Add(ttl)}
	return nil
}

func (ms *MemorySessionStore) GetDraft(_ context.Context, key string) (*domain.Draft, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	e, ok := ms.drafts[key]
	if !ok || e.expired(time.Now()) {
		return nil, nil
	}
	d := e.data
	d.Hashtags = append([]string(nil), e.data.Hashtags...)
	return &d, nil
}

func (ms *MemorySessionStore) DeleteDraft(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.drafts, key)
	return nil
}

func (ms *MemorySessionStore) SaveConsent(_ context.Context, key string, session *domain.ConsentSession, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	stored := *session
	if session.Queued != nil {
		q := *session.Queued
		stored.Queued = &q
	}
	ms.consents[key] = memoryEntry[domain.ConsentSession]{data: stored, expireAt: time.Now().Add(ttl)}
	return nil
}

func (ms *MemorySessionStore) GetConsent(_ context.Context, key string) (*domain.ConsentSession, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	e, ok := ms.consents[key]
	if !ok || e.expired(time.Now()) {
		return nil, nil
	}
	s := e.data
	if e.data.Queued != nil {
		q := *e.data.Queued
		s.Queued = &q
	}
	return &s, nil
}

func (ms *MemorySessionStore) DeleteConsent(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.consents, key)
	return nil
}

func (ms *MemorySessionStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ms.stopCh:
			return
		case <-ticker.C:
			ms.cleanup()
		}
	}
}

func (ms *MemorySessionStore) cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range ms.drafts {
		if e.expired(now) {
			delete(ms.drafts, key)
			removed++
		}
	}
	for key, e := range ms.consents {
		if e.expired(now) {
			delete(ms.consents, key)
			removed++
		}
	}
	if removed > 0 {
		logrus.Debugf("[MemorySessionStore] Cleanup: removed %d expired entries", removed)
	}
}

// Stats returns the number of live drafts and consent sessions.
func (ms *MemorySessionStore) Stats() (drafts int, consents int) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	now := time.Now()
	for _, e := range ms.drafts {
		if !e.expired(now) {
			drafts++
		}
	}
	for _, e := range ms.consents {
		if !e.expired(now) {
			consents++
		}
	}
	return
}
