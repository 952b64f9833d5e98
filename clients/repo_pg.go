package clients

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/seo-optimizer/insights/models"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const clientColumns = `id, owner_id, name, website, seo_score, aio_score, status, last_analysis, last_report, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var c Client
	var status sql.NullString
	var lastAnalysis sql.NullTime
	var lastReport sql.NullString
	if err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Website,
		&c.SEOScore,
		&c.AIOScore,
		&status,
		&lastAnalysis,
		&lastReport,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Client{}, err
	}
	if status.Valid {
		c.Status = models.HealthStatus(status.String)
	}
	if lastAnalysis.Valid {
		t := lastAnalysis.Time
		c.LastAnalysis = &t
	}
	if lastReport.Valid && json.Valid([]byte(lastReport.String)) {
		c.LastReport = json.RawMessage(lastReport.String)
	}
	return c, nil
}

func (r *PGRepo) List(ctx context.Context) ([]Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (Client, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1 LIMIT 1`, id)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Client{}, models.ErrNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func (r *PGRepo) Create(ctx context.Context, client Client) error {
	const query = `
INSERT INTO clients (id, owner_id, name, website, seo_score, aio_score, status, last_analysis, last_report, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.DB.ExecContext(ctx, query,
		client.ID,
		client.OwnerID,
		client.Name,
		client.Website,
		client.SEOScore,
		client.AIOScore,
		nullString(string(client.Status)),
		nullTime(client.LastAnalysis),
		jsonb(client.LastReport),
		client.CreatedAt,
		client.UpdatedAt,
	)
	return err
}

// Update writes the analysis fields of an existing client.
func (r *PGRepo) Update(ctx context.Context, client Client) error {
	const query = `
UPDATE clients
SET name = $2, website = $3, seo_score = $4, aio_score = $5, status = $6,
    last_analysis = $7, last_report = $8, updated_at = $9
WHERE id = $1`
	updatedAt := client.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := r.DB.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.Website,
		client.SEOScore,
		client.AIOScore,
		nullString(string(client.Status)),
		nullTime(client.LastAnalysis),
		jsonb(client.LastReport),
		updatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PGRepo) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	const query = `
INSERT INTO client_history (id, client_id, seo_score, aio_score, status, report, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		entry.ID,
		entry.ClientID,
		entry.SEOScore,
		entry.AIOScore,
		string(entry.Status),
		jsonb(entry.Report),
		entry.RecordedAt,
	)
	return err
}

func (r *PGRepo) History(ctx context.Context, clientID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT id, client_id, seo_score, aio_score, status, report, recorded_at
FROM client_history
WHERE client_id = $1
ORDER BY recorded_at DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var status string
		var report []byte
		if err := rows.Scan(&e.ID, &e.ClientID, &e.SEOScore, &e.AIOScore, &status, &report, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Status = models.HealthStatus(status)
		e.Report = json.RawMessage(report)
		out = append(out, e)
	}
	return out, rows.Err()
}

func jsonb(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
