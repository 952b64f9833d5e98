package clients

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/insights/models"
)

func newMock(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

var columns = []string{"id", "owner_id", "name", "website", "seo_score", "aio_score", "status", "last_analysis", "last_report", "created_at", "updated_at"}

func TestPGRepoGetByID(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	analyzed := created.Add(time.Hour)

	mock.ExpectQuery("FROM clients WHERE id = \\$1").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("c-1", "owner-1", "Acme", "acme.example", 81.0, 64.0, "needs-improvement", analyzed, `{"seoScore":81}`, created, analyzed))
	mock.ExpectQuery("FROM clients WHERE id = \\$1").
		WithArgs("c-2").
		WillReturnRows(sqlmock.NewRows(columns))

	c, err := repo.GetByID(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.Equal(t, models.StatusNeedsImprovement, c.Status)
	require.NotNil(t, c.LastAnalysis)
	assert.Equal(t, analyzed, *c.LastAnalysis)
	assert.JSONEq(t, `{"seoScore":81}`, string(c.LastReport))

	_, err = repo.GetByID(context.Background(), "c-2")
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoListHandlesNeverAnalyzed(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("FROM clients ORDER BY created_at").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("c-1", "", "Fresh", "fresh.example", 0.0, 0.0, nil, nil, nil, created, created))

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].LastAnalysis)
	assert.Empty(t, all[0].Status)
	assert.Nil(t, all[0].LastReport)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoUpdate(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	client := Client{
		ID:           "c-1",
		Name:         "Acme",
		Website:      "acme.example",
		SEOScore:     90,
		AIOScore:     85,
		Status:       models.StatusHealthy,
		LastAnalysis: &now,
		LastReport:   json.RawMessage(`{"status":"healthy"}`),
		UpdatedAt:    now,
	}

	mock.ExpectExec("UPDATE clients").
		WithArgs("c-1", "Acme", "acme.example", 90.0, 85.0, "healthy", now, `{"status":"healthy"}`, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE clients").
		WithArgs("c-9", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Update(context.Background(), client))
	assert.ErrorIs(t, repo.Update(context.Background(), Client{ID: "c-9"}), models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoAppendHistory(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Now().UTC()

	mock.ExpectExec("INSERT INTO client_history").
		WithArgs("h-1", "c-1", 70.0, 60.0, "needs-improvement", `{"a":1}`, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendHistory(context.Background(), HistoryEntry{
		ID:         "h-1",
		ClientID:   "c-1",
		SEOScore:   70,
		AIOScore:   60,
		Status:     models.StatusNeedsImprovement,
		Report:     json.RawMessage(`{"a":1}`),
		RecordedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoHistory(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM client_history").
		WithArgs("c-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "seo_score", "aio_score", "status", "report", "recorded_at"}).
			AddRow("h-2", "c-1", 80.0, 70.0, "needs-improvement", []byte(`{"b":2}`), at))

	entries, err := repo.History(context.Background(), "c-1", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "h-2", entries[0].ID)
	assert.JSONEq(t, `{"b":2}`, string(entries[0].Report))
	require.NoError(t, mock.ExpectationsWereMet())
}
