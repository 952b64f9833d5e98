package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("quota exceeded")
}
func (failingStore) Put(context.Context, string, []byte) error   { return errors.New("quota exceeded") }
func (failingStore) DeletePrefix(context.Context, string) error { return errors.New("quota exceeded") }

// racingStore runs onGet after reading, like a concurrent writer would.
type racingStore struct {
	*MemoryStore
	onGet func()
}

func (s *racingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.MemoryStore.Get(ctx, key)
	if s.onGet != nil {
		fn := s.onGet
		s.onGet = nil
		fn()
	}
	return v, ok, err
}

type report struct {
	Score float64 `json:"score"`
	Tags  []string
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestCache(clock *fakeClock, store Store) *Cache[report] {
	return New[report](Options{
		Name:   "test",
		TTL:    24 * time.Hour,
		Clock:  clock.Now,
		Store:  store,
		Logger: quietLogger(),
	})
}

func TestCacheTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(clock, nil)

	c.Put(ctx, "analysis:mobile:https://example.com", report{Score: 80})

	clock.Advance(24*time.Hour - time.Second)
	e, ok := c.Get(ctx, "analysis:mobile:https://example.com")
	require.True(t, ok)
	assert.Equal(t, 80.0, e.Payload.Score)

	clock.Advance(2 * time.Second)
	_, ok = c.Get(ctx, "analysis:mobile:https://example.com")
	assert.False(t, ok)

	// expired entries stay until purged
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Len())
}

func TestCacheExactTTLBoundaryIsMiss(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New[report](Options{TTL: 30 * time.Minute, Clock: clock.Now, Logger: quietLogger()})

	c.Put(ctx, "k", report{Score: 1})
	clock.Advance(30 * time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCacheOverwrite(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(clock, NewMemoryStore())

	c.Put(ctx, "k", report{Score: 10})
	clock.Advance(time.Hour)
	c.Put(ctx, "k", report{Score: 20})

	e, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 20.0, e.Payload.Score)
	assert.Equal(t, clock.Now(), e.StoredAt)
}

func TestCachePromotesFromTier2(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()

	first := newTestCache(clock, store)
	first.Put(ctx, "k", report{Score: 42, Tags: []string{"a"}})

	clock.Advance(time.Hour)
	second := newTestCache(clock, store)
	require.Equal(t, 0, second.Len())

	e, ok := second.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, report{Score: 42, Tags: []string{"a"}}, e.Payload)
	assert.Equal(t, 1, second.Len())
	assert.Equal(t, uint64(1), second.Stats().Tier2Hits)

	// promotion keeps the original write time
	clock.Advance(23 * time.Hour)
	_, ok = second.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCacheSurvivesBrokenTier2(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(clock, failingStore{})

	assert.NotPanics(t, func() {
		c.Put(ctx, "k", report{Score: 5})
	})
	e, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 5.0, e.Payload.Score)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
	c.Clear(ctx, "")
	assert.Equal(t, uint64(3), c.Stats().StorageErrors)
}

func TestCacheIgnoresCorruptTier2Entry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "k", []byte("{not json")))

	c := newTestCache(clock, store)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().StorageErrors)
}

func TestCacheClearPrefix(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	c := newTestCache(clock, store)

	c.Put(ctx, "psi:mobile:https://a.com", report{})
	c.Put(ctx, "psi:desktop:https://a.com", report{})
	c.Put(ctx, "analysis:mobile:https://a.com", report{})

	removed := c.Clear(ctx, "psi:")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Len())

	_, ok := c.Get(ctx, "psi:mobile:https://a.com")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "analysis:mobile:https://a.com")
	assert.True(t, ok)

	c.Clear(ctx, "")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, store.Len())
}

func TestCachePurgeEnforcesMaxEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New[report](Options{TTL: time.Hour, Clock: clock.Now, Logger: quietLogger(), MaxEntries: 2})

	c.Put(ctx, "oldest", report{})
	clock.Advance(time.Second)
	c.Put(ctx, "middle", report{})
	clock.Advance(time.Second)
	c.Put(ctx, "newest", report{})

	assert.Equal(t, 1, c.Purge())
	_, ok := c.Get(ctx, "oldest")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "newest")
	assert.True(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := New[report](Options{TTL: time.Hour, Store: NewMemoryStore(), Logger: quietLogger()})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put(ctx, "shared", report{Score: float64(i)})
			c.Get(ctx, "shared")
			c.Purge()
		}(i)
	}
	wg.Wait()

	_, ok := c.Get(ctx, "shared")
	assert.True(t, ok)
}

func TestTier2PromotionKeepsNewerPut(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := &racingStore{MemoryStore: NewMemoryStore()}
	c := newTestCache(clock, store)

	c.Put(ctx, "k", report{Score: 1})
	c.mu.Lock()
	delete(c.entries, "k")
	c.mu.Unlock()

	clock.Advance(time.Minute)
	store.onGet = func() { c.Put(ctx, "k", report{Score: 2}) }

	e, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 2.0, e.Payload.Score)

	e, ok = c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 2.0, e.Payload.Score)
}

func TestFileStorePersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	store, err := NewFileStore(dir, time.Hour)
	require.NoError(t, err)
	c := newTestCache(clock, store)
	c.Put(ctx, "analysis:mobile:https://example.com", report{Score: 77})
	c.Put(ctx, "psi:mobile:https://example.com", report{Score: 1})
	c.Clear(ctx, "psi:")
	require.NoError(t, store.Close())
	assert.FileExists(t, filepath.Join(dir, "cache.json"))

	reopened, err := NewFileStore(dir, time.Hour)
	require.NoError(t, err)
	defer reopened.Close()

	fresh := newTestCache(clock, reopened)
	e, ok := fresh.Get(ctx, "analysis:mobile:https://example.com")
	require.True(t, ok)
	assert.Equal(t, 77.0, e.Payload.Score)
	_, ok = fresh.Get(ctx, "psi:mobile:https://example.com")
	assert.False(t, ok)
}

func TestFileStoreRetriesFailedFlush(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger, hook := logtest.NewNullLogger()

	// A directory in the way of the temp file makes every write fail.
	blocker := filepath.Join(dir, "cache.json.tmp")
	require.NoError(t, os.Mkdir(blocker, 0755))

	store, err := NewFileStore(dir, time.Hour, WithFileLogger(logger))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "analysis:mobile:https://example.com", []byte(`{"score":81}`)))

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir, time.Hour)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get(ctx, "analysis:mobile:https://example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"score":81}`, string(v))
}

func TestFileStoreRejectsInvalidJSON(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Put(context.Background(), "k", []byte("nope")))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "analysis:mobile:https://a.com", []byte(`{"v":1}`)))
	require.NoError(t, store.Put(ctx, "analysis:mobile:https://a.com", []byte(`{"v":2}`)))
	require.NoError(t, store.Put(ctx, "psi:mobile:https://a.com", []byte(`{"v":3}`)))

	v, ok, err := store.Get(ctx, "analysis:mobile:https://a.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(v))

	require.NoError(t, store.DeletePrefix(ctx, "psi:"))
	_, ok, err = store.Get(ctx, "psi:mobile:https://a.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.DeletePrefix(ctx, ""))
	_, ok, err = store.Get(ctx, "analysis:mobile:https://a.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
