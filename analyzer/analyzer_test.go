package analyzer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/insights/cache"
	"github.com/seo-optimizer/insights/credentials"
	"github.com/seo-optimizer/insights/fallback"
	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/page"
	"github.com/seo-optimizer/insights/pagespeed"
	"github.com/seo-optimizer/insights/recommend"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingSynth struct {
	inner fallback.Synthesizer
	seo   atomic.Int32
	aio   atomic.Int32
}

func (s *countingSynth) PageInsights(u string, st models.Strategy) models.PageInsightsResult {
	s.seo.Add(1)
	return s.inner.PageInsights(u, st)
}

func (s *countingSynth) Aio(u string) models.AioResult {
	s.aio.Add(1)
	return s.inner.Aio(u)
}

type fakeFetcher struct {
	calls   atomic.Int32
	keys    []string
	mu      sync.Mutex
	payload *pagespeed.Payload
	err     error
	panics  bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, _ models.Strategy, apiKey string) (*pagespeed.Payload, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()
	if f.panics {
		panic("nil map in report decoder")
	}
	if apiKey == "" {
		return nil, models.ErrMissingCredential
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type fakePages struct {
	snap *page.Snapshot
	err  error
}

func (p fakePages) Fetch(context.Context, string) (*page.Snapshot, error) {
	return p.snap, p.err
}

type fakeContent struct {
	calls atomic.Int32
	res   models.AioResult
	err   error
}

func (c *fakeContent) Analyze(_ context.Context, _, content, _ string) (models.AioResult, error) {
	c.calls.Add(1)
	if content == "" {
		return models.AioResult{}, errors.New("empty content")
	}
	return c.res, c.err
}

func f64(v float64) *float64 { return &v }

func samplePayload() *pagespeed.Payload {
	return &pagespeed.Payload{
		ID: "https://example.com/",
		LighthouseResult: &pagespeed.LighthouseResult{
			FinalURL: "https://example.com/",
			Categories: map[string]*pagespeed.Category{
				"performance":    {ID: "performance", Score: f64(0.85)},
				"seo":            {ID: "seo", Score: f64(0.9)},
				"accessibility":  {ID: "accessibility", Score: f64(0.95)},
				"best-practices": {ID: "best-practices", Score: f64(1)},
			},
			Audits: map[string]*pagespeed.RawAudit{
				"is-on-https": {ID: "is-on-https", Score: f64(1), ScoreDisplayMode: "binary"},
				"viewport":    {ID: "viewport", Score: f64(1), ScoreDisplayMode: "binary"},
			},
		},
	}
}

type harness struct {
	clock   *fakeClock
	synth   *countingSynth
	fetcher *fakeFetcher
	creds   *credentials.MemoryStore
	content *fakeContent
	an      *Analyzer
}

func newHarness(t *testing.T, pages PageFetcher) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		clock:   &fakeClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		fetcher: &fakeFetcher{payload: samplePayload()},
		creds:   credentials.NewMemoryStore(),
		content: &fakeContent{res: models.AioResult{OverallScore: 88, ClarityScore: 90, StructureScore: 85, LanguageScore: 89, Topics: []string{"a", "b", "c"}, Source: models.SourceAIService}},
	}
	h.synth = &countingSynth{inner: fallback.Synthesizer{Now: h.clock.Now}}

	store := cache.NewMemoryStore()
	results := cache.New[models.CombinedAnalysisResult](cache.Options{Name: "analysis", TTL: 24 * time.Hour, Clock: h.clock.Now, Store: store, Logger: logger})
	payloads := cache.New[pagespeed.Payload](cache.Options{Name: "psi", TTL: 30 * time.Minute, Clock: h.clock.Now, Store: store, Logger: logger})

	an, err := New(Config{
		Results:     results,
		Payloads:    payloads,
		Credentials: h.creds,
		Fetcher:     h.fetcher,
		Content:     h.content,
		Pages:       pages,
		Synthesizer: h.synth,
		Logger:      logger,
		Clock:       h.clock.Now,
	})
	require.NoError(t, err)
	h.an = an
	return h
}

func TestAnalyzeWithoutCredentialIsSyntheticAndCached(t *testing.T) {
	h := newHarness(t, fakePages{snap: &page.Snapshot{Text: "hello"}})
	ctx := context.Background()

	first, err := h.an.Analyze(ctx, AnalysisRequest{URL: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceSynthetic, first.SEO.Source)
	assert.Equal(t, models.SourceSynthetic, first.AIO.Source)
	assert.True(t, first.Degraded)
	assert.Len(t, first.Notices, 2)
	assert.Equal(t, recommend.Classify(first.SEOScore, first.AIOScore), first.Status)
	assert.Equal(t, "https://example.com", first.URL)
	assert.Equal(t, int32(1), h.synth.seo.Load())
	assert.Equal(t, int32(1), h.synth.aio.Load())
	assert.Zero(t, h.content.calls.Load())

	h.clock.Advance(5 * time.Minute)
	second, err := h.an.Analyze(ctx, AnalysisRequest{URL: "HTTP://Example.com/"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), h.synth.seo.Load())
	assert.Equal(t, int32(1), h.synth.aio.Load())
	assert.Equal(t, int32(1), h.fetcher.calls.Load())

	stats := h.an.CacheStats()
	assert.Equal(t, uint64(1), stats.Results.Hits)
}

func TestAnalyzeResultsDoNotAliasCache(t *testing.T) {
	h := newHarness(t, fakePages{snap: &page.Snapshot{Text: "hello"}})
	ctx := context.Background()

	first, err := h.an.Analyze(ctx, AnalysisRequest{URL: "example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, first.Notices)
	require.NotEmpty(t, first.SEO.Audits)
	want := first.Clone()

	first.Notices[0] = "tampered"
	first.SEO.Audits[0].Title = "tampered"
	if len(first.Recommendations) > 0 {
		first.Recommendations[0].Title = "tampered"
	}

	second, err := h.an.Analyze(ctx, AnalysisRequest{URL: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, want, *second)

	second.Notices[0] = "tampered again"
	third, err := h.an.Analyze(ctx, AnalysisRequest{URL: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, want.Notices, third.Notices)
}

func TestAnalyzeRealPath(t *testing.T) {
	snap := &page.Snapshot{
		Title:     "Example",
		Canonical: "https://example.com/",
		Viewport:  "width=device-width",
		Headings:  models.HeadingStructure{HasH1: true, SingleH1: true, HasSubheadings: true, ProperOrder: true, H1Count: 1},
		Text:      "Example content about widgets.",
	}
	h := newHarness(t, fakePages{snap: snap})
	h.creds.Set("u1", credentials.ProviderPageSpeed, "psi-key")
	h.creds.Set("u1", credentials.ProviderAI, "ai-key")
	ctx := context.Background()

	res, err := h.an.Analyze(ctx, AnalysisRequest{URL: "https://example.com", Strategy: models.StrategyDesktop, UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Notices)
	assert.Equal(t, models.SourcePageSpeed, res.SEO.Source)
	assert.Equal(t, models.SourceAIService, res.AIO.Source)
	assert.Equal(t, 90.0, res.SEOScore)
	assert.Equal(t, 88.0, res.AIOScore)
	assert.Equal(t, models.StatusHealthy, res.Status)
	assert.True(t, res.SEO.Meta.HasCanonical)
	assert.Equal(t, []string{"psi-key"}, h.fetcher.keys)
	assert.Zero(t, h.synth.seo.Load()+h.synth.aio.Load())

	for i := 1; i < len(res.Recommendations); i++ {
		assert.GreaterOrEqual(t, res.Recommendations[i-1].Priority, res.Recommendations[i].Priority)
	}

	// Clearing drops raw reports as well as combined results.
	h.an.ClearCache(ctx, "")
	_, err = h.an.Analyze(ctx, AnalysisRequest{URL: "https://example.com", Strategy: models.StrategyDesktop, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.fetcher.calls.Load())

	h.an.ClearCache(ctx, "desktop:")
	h.clock.Advance(time.Minute)
	_, err = h.an.Analyze(ctx, AnalysisRequest{URL: "https://example.com", Strategy: models.StrategyDesktop, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), h.fetcher.calls.Load())
}

func TestAnalyzePayloadCacheSkipsFetcher(t *testing.T) {
	h := newHarness(t, nil)
	h.creds.Set("u1", credentials.ProviderPageSpeed, "psi-key")
	ctx := context.Background()

	_, err := h.an.Analyze(ctx, AnalysisRequest{URL: "example.com", UserID: "u1"})
	require.NoError(t, err)
	h.an.results.Clear(ctx, "")

	res, err := h.an.Analyze(ctx, AnalysisRequest{URL: "example.com", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.fetcher.calls.Load())
	assert.Equal(t, models.SourcePageSpeed, res.SEO.Source)
	// No page fetcher configured: AI half is synthetic.
	assert.Equal(t, models.SourceSynthetic, res.AIO.Source)
	assert.True(t, res.Degraded)
	assert.Len(t, res.Notices, 1)
}

func TestAnalyzeUpstreamFailureFallsBack(t *testing.T) {
	cases := map[string]error{
		"upstream": &models.UpstreamError{Service: "pagespeed", StatusCode: http.StatusInternalServerError, Message: "backend error"},
		"timeout":  models.ErrTimeout,
		"other":    errors.New("connection reset"),
	}
	for name, fetchErr := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.creds.Set("u1", credentials.ProviderPageSpeed, "psi-key")
			h.fetcher.err = fetchErr

			res, err := h.an.Analyze(context.Background(), AnalysisRequest{URL: "example.org", UserID: "u1"})
			require.NoError(t, err)
			want := h.synth.inner.PageInsights("https://example.org", models.StrategyMobile)
			assert.Equal(t, want.SEOScore, res.SEOScore)
			assert.Equal(t, models.SourceSynthetic, res.SEO.Source)
			assert.True(t, res.Degraded)
			require.NotEmpty(t, res.Notices)
			assert.Contains(t, res.Notices[0], "Performance and SEO data is estimated")
		})
	}
}

func TestAnalyzeRecoversFromPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.creds.Set("u1", credentials.ProviderPageSpeed, "psi-key")
	h.fetcher.panics = true

	res, err := h.an.Analyze(context.Background(), AnalysisRequest{URL: "example.net", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceSynthetic, res.SEO.Source)
	assert.Equal(t, "panic", fallbackReason(guard(func() error { panic("x") })))
}

func TestAnalyzeAIFailureKeepsPageFacts(t *testing.T) {
	snap := &page.Snapshot{Title: "T", Canonical: "https://example.com/", Text: "body"}
	h := newHarness(t, fakePages{snap: snap})
	h.creds.Set("u1", credentials.ProviderPageSpeed, "psi-key")
	h.creds.Set("u1", credentials.ProviderAI, "ai-key")
	h.content.err = &models.UpstreamError{Service: "aio", StatusCode: http.StatusTooManyRequests}

	res, err := h.an.Analyze(context.Background(), AnalysisRequest{URL: "example.com", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceSynthetic, res.AIO.Source)
	assert.Equal(t, models.SourcePageSpeed, res.SEO.Source)
	assert.True(t, res.SEO.Meta.HasCanonical)
	assert.Len(t, res.Notices, 1)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.an.Analyze(context.Background(), AnalysisRequest{URL: "ftp://example.com"})
	assert.ErrorIs(t, err, models.ErrInvalidURL)

	_, err = h.an.Analyze(context.Background(), AnalysisRequest{URL: "example.com", Strategy: "tablet"})
	assert.ErrorIs(t, err, models.ErrInvalidStrategy)
	assert.Zero(t, h.fetcher.calls.Load())
}

func TestAnalyzeCancelledIsNotCached(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.an.Analyze(ctx, AnalysisRequest{URL: "example.com"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Zero(t, h.an.results.Len())
}

type brokenCreds struct{}

func (brokenCreds) Lookup(context.Context, string, credentials.Provider) (string, error) {
	return "", errors.New("connection refused")
}

func TestAnalyzeCredentialStoreFailureIsMissingKey(t *testing.T) {
	h := newHarness(t, nil)
	h.an.creds = brokenCreds{}

	res, err := h.an.Analyze(context.Background(), AnalysisRequest{URL: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceSynthetic, res.SEO.Source)
	assert.Equal(t, []string{""}, h.fetcher.keys)
}

func TestAnalyzeWithRealClientNeverCallsUpstreamWithoutKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHarness(t, nil)
	h.an.fetcher = pagespeed.NewClient(pagespeed.Options{Endpoint: srv.URL})

	res, err := h.an.Analyze(context.Background(), AnalysisRequest{URL: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceSynthetic, res.SEO.Source)
	assert.Zero(t, hits.Load())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
