package analyzer

import (
	"context"

	"github.com/seo-optimizer/insights/cache"
	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/page"
	"github.com/seo-optimizer/insights/pagespeed"
)

// Cache namespaces. Both caches may share one tier-2 store.
const (
	ResultNamespace  = "analysis"
	PayloadNamespace = "psi"
)

// AnalysisRequest asks for one URL. UserID selects whose credentials are used;
// an empty strategy means mobile.
type AnalysisRequest struct {
	URL      string          `json:"url" binding:"required"`
	Strategy models.Strategy `json:"strategy"`
	UserID   string          `json:"-"`
}

// InsightFetcher retrieves a raw performance report.
type InsightFetcher interface {
	Fetch(ctx context.Context, pageURL string, strategy models.Strategy, apiKey string) (*pagespeed.Payload, error)
}

// ContentAnalyzer scores page text for AI readability.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, pageURL, content, apiKey string) (models.AioResult, error)
}

// PageFetcher downloads and parses a page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*page.Snapshot, error)
}

// Synthesizer stands in for the upstream services.
type Synthesizer interface {
	PageInsights(pageURL string, strategy models.Strategy) models.PageInsightsResult
	Aio(pageURL string) models.AioResult
}

// CacheStats reports both cache layers.
type CacheStats struct {
	Results  cache.Stats `json:"results"`
	Payloads cache.Stats `json:"payloads"`
}
