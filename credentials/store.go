// Package credentials resolves the API keys a user has registered for the
// upstream services. A missing key is normal and means "use fallback data".
package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/seo-optimizer/insights/models"
)

// Provider names an upstream service a key belongs to.
type Provider string

const (
	ProviderPageSpeed Provider = "pagespeed"
	ProviderAI        Provider = "aio"
)

// Store looks up a user's key for a provider. It returns models.ErrNotFound
// when the user has none.
type Store interface {
	Lookup(ctx context.Context, userID string, provider Provider) (string, error)
}

// MemoryStore keeps keys in memory and is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func memoryKey(userID string, provider Provider) string {
	return userID + "|" + string(provider)
}

// Set stores a key; an empty key removes it.
func (s *MemoryStore) Set(userID string, provider Provider, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(apiKey) == "" {
		delete(s.keys, memoryKey(userID, provider))
		return
	}
	s.keys[memoryKey(userID, provider)] = apiKey
}

// Save is Set with the signature shared with PGStore; id is ignored.
func (s *MemoryStore) Save(ctx context.Context, _ string, userID string, provider Provider, apiKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Set(userID, provider, apiKey)
	return nil
}

// ParseProvider accepts the provider names used in URLs and config.
func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderPageSpeed:
		return ProviderPageSpeed, true
	case ProviderAI:
		return ProviderAI, true
	}
	return "", false
}

func (s *MemoryStore) Lookup(ctx context.Context, userID string, provider Provider) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[memoryKey(userID, provider)]
	if !ok {
		return "", models.ErrNotFound
	}
	return key, nil
}

// Static serves one configured key per provider to every user.
type Static map[Provider]string

func (s Static) Lookup(ctx context.Context, _ string, provider Provider) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := strings.TrimSpace(s[provider])
	if key == "" {
		return "", models.ErrNotFound
	}
	return key, nil
}

// Chain asks each store in turn and returns the first key found. When no
// store has a key, the last non-NotFound error wins over models.ErrNotFound.
type Chain []Store

func (c Chain) Lookup(ctx context.Context, userID string, provider Provider) (string, error) {
	var lastErr error
	for _, s := range c {
		if s == nil {
			continue
		}
		key, err := s.Lookup(ctx, userID, provider)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", models.ErrNotFound
}
