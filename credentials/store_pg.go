package credentials

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/seo-optimizer/insights/models"
)

// PGStore reads keys from the api_credentials table.
type PGStore struct {
	DB *sql.DB
}

func (s *PGStore) Lookup(ctx context.Context, userID string, provider Provider) (string, error) {
	const query = `
SELECT api_key
FROM api_credentials
WHERE user_id = $1 AND provider = $2 AND revoked_at IS NULL
ORDER BY created_at DESC
LIMIT 1`
	var key string
	err := s.DB.QueryRowContext(ctx, query, userID, string(provider)).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", err
	}
	if key == "" {
		return "", models.ErrNotFound
	}
	return key, nil
}

// Save registers a key, revoking any earlier one for the same user and provider.
func (s *PGStore) Save(ctx context.Context, id, userID string, provider Provider, apiKey string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE api_credentials SET revoked_at = $1 WHERE user_id = $2 AND provider = $3 AND revoked_at IS NULL`,
		now, userID, string(provider)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO api_credentials (id, user_id, provider, api_key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, userID, string(provider), apiKey, now); err != nil {
		return err
	}
	return tx.Commit()
}
