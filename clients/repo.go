package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/urlkey"
)

// Repo defines persistence operations for clients. Lookups of unknown ids
// return models.ErrNotFound.
type Repo interface {
	List(ctx context.Context) ([]Client, error)
	GetByID(ctx context.Context, id string) (Client, error)
	Create(ctx context.Context, client Client) error
	Update(ctx context.Context, client Client) error
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	History(ctx context.Context, clientID string, limit int) ([]HistoryEntry, error)
}

// Import stores a batch of validated clients, assigning ids. It stops at the
// first failure and returns the clients stored so far.
func Import(ctx context.Context, repo Repo, batch []NewClient) ([]Client, error) {
	out := make([]Client, 0, len(batch))
	for i, nc := range batch {
		name := strings.TrimSpace(nc.Name)
		if name == "" {
			return out, fmt.Errorf("client %d: name is required", i)
		}
		if _, err := urlkey.Normalize(nc.Website); err != nil {
			return out, fmt.Errorf("client %d: %w", i, err)
		}
		now := time.Now().UTC()
		c := Client{
			ID:        uuid.NewString(),
			OwnerID:   strings.TrimSpace(nc.OwnerID),
			Name:      name,
			Website:   strings.TrimSpace(nc.Website),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.Create(ctx, c); err != nil {
			return out, &models.PersistenceError{ClientID: c.ID, Err: err}
		}
		out = append(out, c)
	}
	return out, nil
}
