package clients

import (
	"context"
	"sort"
	"sync"

	"github.com/seo-optimizer/insights/models"
)

// MemoryRepo stores clients in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]Client
	history map[string][]HistoryEntry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]Client),
		history: make(map[string][]HistoryEntry),
	}
}

// List returns all clients ordered by creation time, then id.
func (r *MemoryRepo) List(ctx context.Context) ([]Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Client, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Client, error) {
	if err := ctx.Err(); err != nil {
		return Client{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Client{}, models.ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) Create(ctx context.Context, client Client) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[client.ID] = client
	return nil
}

// Update replaces an existing client.
func (r *MemoryRepo) Update(ctx context.Context, client Client) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[client.ID]; !ok {
		return models.ErrNotFound
	}
	r.byID[client.ID] = client
	return nil
}

func (r *MemoryRepo) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[entry.ClientID]; !ok {
		return models.ErrNotFound
	}
	r.history[entry.ClientID] = append(r.history[entry.ClientID], entry)
	return nil
}

// History returns the newest entries first; limit <= 0 means all.
func (r *MemoryRepo) History(ctx context.Context, clientID string, limit int) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.history[clientID]
	out := make([]HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
