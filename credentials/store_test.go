package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/insights/models"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Lookup(ctx, "user-1", ProviderPageSpeed)
	assert.ErrorIs(t, err, models.ErrNotFound)

	s.Set("user-1", ProviderPageSpeed, "psi-key")
	key, err := s.Lookup(ctx, "user-1", ProviderPageSpeed)
	require.NoError(t, err)
	assert.Equal(t, "psi-key", key)

	_, err = s.Lookup(ctx, "user-1", ProviderAI)
	assert.ErrorIs(t, err, models.ErrNotFound)

	s.Set("user-1", ProviderPageSpeed, "")
	_, err = s.Lookup(ctx, "user-1", ProviderPageSpeed)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type brokenStore struct{}

func (brokenStore) Lookup(context.Context, string, Provider) (string, error) {
	return "", errors.New("connection refused")
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	user := NewMemoryStore()
	user.Set("user-1", ProviderAI, "user-ai-key")
	global := Static{ProviderPageSpeed: "global-psi-key"}

	chain := Chain{user, global}
	key, err := chain.Lookup(ctx, "user-1", ProviderAI)
	require.NoError(t, err)
	assert.Equal(t, "user-ai-key", key)

	key, err = chain.Lookup(ctx, "user-2", ProviderPageSpeed)
	require.NoError(t, err)
	assert.Equal(t, "global-psi-key", key)

	_, err = chain.Lookup(ctx, "user-2", ProviderAI)
	assert.ErrorIs(t, err, models.ErrNotFound)

	key, err = Chain{brokenStore{}, global}.Lookup(ctx, "u", ProviderPageSpeed)
	require.NoError(t, err)
	assert.Equal(t, "global-psi-key", key)

	_, err = Chain{brokenStore{}, nil}.Lookup(ctx, "u", ProviderAI)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestPGStoreLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := &PGStore{DB: db}

	mock.ExpectQuery("FROM api_credentials").
		WithArgs("user-1", "pagespeed").
		WillReturnRows(sqlmock.NewRows([]string{"api_key"}).AddRow("k-123"))
	mock.ExpectQuery("FROM api_credentials").
		WithArgs("user-2", "pagespeed").
		WillReturnRows(sqlmock.NewRows([]string{"api_key"}))

	key, err := s.Lookup(context.Background(), "user-1", ProviderPageSpeed)
	require.NoError(t, err)
	assert.Equal(t, "k-123", key)

	_, err = s.Lookup(context.Background(), "user-2", ProviderPageSpeed)
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := &PGStore{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE api_credentials SET revoked_at").
		WithArgs(sqlmock.AnyArg(), "user-1", "aio").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO api_credentials").
		WithArgs("cred-1", "user-1", "aio", "secret", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), "cred-1", "user-1", ProviderAI, "secret"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreSaveAndParseProvider(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Save(context.Background(), "ignored", "u1", ProviderAI, "k"))
	key, err := s.Lookup(context.Background(), "u1", ProviderAI)
	require.NoError(t, err)
	assert.Equal(t, "k", key)

	p, ok := ParseProvider(" PageSpeed ")
	assert.True(t, ok)
	assert.Equal(t, ProviderPageSpeed, p)
	_, ok = ParseProvider("bing")
	assert.False(t, ok)
}
