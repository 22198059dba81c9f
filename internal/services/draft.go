package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

// DraftStore is a small KV for the client's in-progress quiz buffer.
type DraftStore interface {
	Get(ctx context.Context, token string) ([]byte, bool, error)
	Set(ctx context.Context, token string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context, token string) error
}

const (
	defaultMaxDrafts   = 10000
	draftPurgeInterval = time.Minute
)

type draftRequest struct {
	SessionToken string `json:"session_token" validate:"required"`
	Draft        string `json:"draft" validate:"required,json,max=65536"`
}

type DraftService interface {
	Get(ctx context.Context, token string) (json.RawMessage, error)
	Put(ctx context.Context, token string, draft json.RawMessage) error
	Clear(ctx context.Context, token string) error
}

type draftService struct {
	store    DraftStore
	sessions SessionService
	log      *logger.Logger
	ttl      time.Duration
}

func NewDraftService(store DraftStore, sessions SessionService, ttl time.Duration, baseLog *logger.Logger) DraftService {
	return &draftService{
		store:    store,
		sessions: sessions,
		log:      baseLog.With("service", "DraftService"),
		ttl:      ttl,
	}
}

// Get returns the stored draft, or nil when there is none. Drafts outlive neither the session
// nor its anonymity.
func (s *draftService) Get(ctx context.Context, token string) (json.RawMessage, error) {
	if _, err := s.sessions.Lookup(ctx, token); err != nil {
		return nil, err
	}
	raw, ok, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

func (s *draftService) Put(ctx context.Context, token string, draft json.RawMessage) error {
	if err := validateStruct(draftRequest{SessionToken: token, Draft: string(draft)}); err != nil {
		return err
	}
	sess, err := s.anonymousSession(ctx, token)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if s.ttl > 0 && s.ttl < ttl {
		ttl = s.ttl
	}
	if ttl <= 0 {
		return ErrSessionExpired
	}
	if err := s.store.Set(ctx, token, draft, ttl); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Clear follows the same rules as Put: only a live, unclaimed session may touch its draft.
func (s *draftService) Clear(ctx context.Context, token string) error {
	if _, err := s.anonymousSession(ctx, token); err != nil {
		return err
	}
	if err := s.store.Clear(ctx, token); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

func (s *draftService) anonymousSession(ctx context.Context, token string) (*types.QuizSession, error) {
	sess, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Claimed() {
		return nil, ErrSessionClaimed
	}
	return sess, nil
}

type memoryDraft struct {
	value     []byte
	expiresAt time.Time
}

// MemoryDraftStore is the in-process DraftStore used when redis is not configured. Expired
// drafts are purged on a timer driven by Set and by the expiry sweeper, and the store never
// holds more than maxEntries drafts.
type MemoryDraftStore struct {
	mu         sync.Mutex
	drafts     map[string]memoryDraft
	maxEntries int
	lastPurge  time.Time
	now        func() time.Time
}

func NewMemoryDraftStore(maxEntries int) *MemoryDraftStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxDrafts
	}
	return &MemoryDraftStore{drafts: map[string]memoryDraft{}, maxEntries: maxEntries, now: time.Now}
}

func (m *MemoryDraftStore) Get(_ context.Context, token string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[token]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(d.expiresAt) {
		delete(m.drafts, token)
		return nil, false, nil
	}
	out := make([]byte, len(d.value))
	copy(out, d.value)
	return out, true, nil
}

func (m *MemoryDraftStore) Set(_ context.Context, token string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if now.Sub(m.lastPurge) >= draftPurgeInterval {
		m.purgeLocked(now)
	}
	if _, exists := m.drafts[token]; !exists && len(m.drafts) >= m.maxEntries {
		m.purgeLocked(now)
		if len(m.drafts) >= m.maxEntries {
			m.evictSoonestLocked()
		}
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	m.drafts[token] = memoryDraft{value: buf, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryDraftStore) Clear(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, token)
	return nil
}

// Purge drops every expired draft and reports how many were removed.
func (m *MemoryDraftStore) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(m.now())
}

func (m *MemoryDraftStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drafts)
}

func (m *MemoryDraftStore) purgeLocked(now time.Time) int {
	removed := 0
	for k, d := range m.drafts {
		if !now.Before(d.expiresAt) {
			delete(m.drafts, k)
			removed++
		}
	}
	m.lastPurge = now
	return removed
}

func (m *MemoryDraftStore) evictSoonestLocked() {
	var soonestKey string
	var soonest time.Time
	for k, d := range m.drafts {
		if soonestKey == "" || d.expiresAt.Before(soonest) {
			soonestKey, soonest = k, d.expiresAt
		}
	}
	delete(m.drafts, soonestKey)
}
