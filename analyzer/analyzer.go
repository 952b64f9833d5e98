// Package analyzer turns a URL into a combined SEO and AI-readability report.
// Upstream failures never reach the caller: they are replaced by synthetic
// data and flagged on the result.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seo-optimizer/insights/cache"
	"github.com/seo-optimizer/insights/credentials"
	"github.com/seo-optimizer/insights/metrics"
	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/page"
	"github.com/seo-optimizer/insights/pagespeed"
	"github.com/seo-optimizer/insights/recommend"
	"github.com/seo-optimizer/insights/stats"
	"github.com/seo-optimizer/insights/urlkey"
)

// Config wires an Analyzer. Fetcher, Results, Payloads and Synthesizer are
// required. Without Content or Pages, AI analysis always uses synthetic data.
type Config struct {
	Results     *cache.Cache[models.CombinedAnalysisResult]
	Payloads    *cache.Cache[pagespeed.Payload]
	Credentials credentials.Store
	Fetcher     InsightFetcher
	Content     ContentAnalyzer
	Pages       PageFetcher
	Synthesizer Synthesizer
	Stats       stats.Recorder
	Logger      logrus.FieldLogger
	Clock       func() time.Time
}

// Analyzer runs the acquisition pipeline.
type Analyzer struct {
	results  *cache.Cache[models.CombinedAnalysisResult]
	payloads *cache.Cache[pagespeed.Payload]
	creds    credentials.Store
	fetcher  InsightFetcher
	content  ContentAnalyzer
	pages    PageFetcher
	synth    Synthesizer
	stats    stats.Recorder
	log      logrus.FieldLogger
	now      func() time.Time
}

// New creates an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Results == nil || cfg.Payloads == nil {
		return nil, errors.New("analyzer: result and payload caches are required")
	}
	if cfg.Fetcher == nil || cfg.Synthesizer == nil {
		return nil, errors.New("analyzer: fetcher and synthesizer are required")
	}
	if cfg.Credentials == nil {
		cfg.Credentials = credentials.Static(nil)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Analyzer{
		results:  cfg.Results,
		payloads: cfg.Payloads,
		creds:    cfg.Credentials,
		fetcher:  cfg.Fetcher,
		content:  cfg.Content,
		pages:    cfg.Pages,
		synth:    cfg.Synthesizer,
		stats:    cfg.Stats,
		log:      cfg.Logger,
		now:      cfg.Clock,
	}, nil
}

// Analyze returns the combined report for req. Only an unusable URL is an
// error; every other failure degrades to synthetic data. Results are cached
// per normalized URL and strategy.
func (a *Analyzer) Analyze(ctx context.Context, req AnalysisRequest) (*models.CombinedAnalysisResult, error) {
	strategy, err := models.ParseStrategy(string(req.Strategy))
	if err != nil {
		return nil, err
	}
	normalized, err := urlkey.Normalize(req.URL)
	if err != nil {
		return nil, err
	}
	key, _ := urlkey.Key(ResultNamespace, normalized, strategy)

	if entry, ok := a.results.Get(ctx, key); ok {
		a.stats.Record(stats.Delta{ResultCacheHits: 1})
		metrics.IncResultCache(true)
		res := entry.Payload.Clone()
		return &res, nil
	}
	a.stats.Record(stats.Delta{ResultCacheMisses: 1})
	metrics.IncResultCache(false)
	metrics.IncAnalysisStarted()
	start := a.now()

	log := a.log.WithFields(logrus.Fields{"url": normalized, "strategy": strategy})

	var (
		seo     models.PageInsightsResult
		aio     models.AioResult
		snap    *page.Snapshot
		notices = make([]string, 2)
	)
	var g errgroup.Group
	g.Go(func() error {
		seo, notices[0] = a.pageInsights(ctx, log, normalized, strategy, req.UserID)
		return nil
	})
	g.Go(func() error {
		aio, snap, notices[1] = a.aiReadability(ctx, log, normalized, req.UserID)
		return nil
	})
	_ = g.Wait()

	// The report's heading and meta flags are coarse; the page itself is exact.
	if snap != nil && seo.Source == models.SourcePageSpeed {
		snap.ApplyTo(&seo)
	}

	res := models.CombinedAnalysisResult{
		URL:        normalized,
		Key:        key,
		Domain:     urlkey.Domain(normalized),
		Strategy:   strategy,
		SEO:        seo,
		AIO:        aio,
		SEOScore:   seo.SEOScore,
		AIOScore:   aio.OverallScore,
		AnalyzedAt: a.now(),
	}
	for _, n := range notices {
		if n != "" {
			res.Notices = append(res.Notices, n)
		}
	}
	res.Degraded = len(res.Notices) > 0
	res.Status = recommend.Classify(res.SEOScore, res.AIOScore)
	res.Recommendations = recommend.Build(&res.SEO, &res.AIO)
	recommend.SortByPriority(res.Recommendations)

	metrics.IncAnalysisCompleted()
	if res.Degraded {
		metrics.IncAnalysisDegraded()
	}
	metrics.ObserveAnalysisDurationMs(float64(a.now().Sub(start).Milliseconds()))

	// A cancelled caller still gets a result but it is not cached: the
	// fallback may have been caused by the cancellation itself.
	if ctx.Err() == nil {
		a.results.Put(ctx, key, res.Clone())
	}

	log.WithFields(logrus.Fields{
		"seo_score": res.SEOScore,
		"aio_score": res.AIOScore,
		"status":    res.Status,
		"degraded":  res.Degraded,
	}).Info("analysis completed")
	return &res, nil
}

// ClearCache drops cached reports and raw payloads whose key starts with
// prefix within each namespace. An empty prefix clears everything.
func (a *Analyzer) ClearCache(ctx context.Context, prefix string) int {
	n := a.results.Clear(ctx, urlkey.Prefix(ResultNamespace)+prefix)
	n += a.payloads.Clear(ctx, urlkey.Prefix(PayloadNamespace)+prefix)
	a.log.WithFields(logrus.Fields{"prefix": prefix, "removed": n}).Info("cache cleared")
	return n
}

// CacheStats returns the counters of both caches.
func (a *Analyzer) CacheStats() CacheStats {
	return CacheStats{Results: a.results.Stats(), Payloads: a.payloads.Stats()}
}

// RunCleanup purges expired entries of both caches until ctx is done.
func (a *Analyzer) RunCleanup(ctx context.Context, interval time.Duration) {
	go a.payloads.RunCleanup(ctx, interval)
	a.results.RunCleanup(ctx, interval)
}

// fallbackReason names the metric label for an acquisition failure.
func fallbackReason(err error) string {
	var upstream *models.UpstreamError
	switch {
	case errors.Is(err, models.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, models.ErrTimeout):
		return "timeout"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.Is(err, errPanic):
		return "panic"
	default:
		return "other"
	}
}

var errPanic = errors.New("panic during acquisition")

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return fn()
}
