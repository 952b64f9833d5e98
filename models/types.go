package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Strategy selects the device profile an upstream audit runs with.
type Strategy string

const (
	StrategyMobile  Strategy = "mobile"
	StrategyDesktop Strategy = "desktop"
)

// ParseStrategy accepts "mobile" or "desktop" in any case. Empty means mobile.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(StrategyMobile):
		return StrategyMobile, nil
	case string(StrategyDesktop):
		return StrategyDesktop, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidStrategy, raw)
	}
}

// Source records where a result came from.
type Source string

const (
	SourcePageSpeed Source = "pagespeed"
	SourceAIService Source = "ai-service"
	SourceSynthetic Source = "synthetic"
)

// HealthStatus is the three-level classification of a combined result.
type HealthStatus string

const (
	StatusHealthy          HealthStatus = "healthy"
	StatusNeedsImprovement HealthStatus = "needs-improvement"
	StatusCritical         HealthStatus = "critical"
)

// CoreWebVitals holds field-style timing metrics. LCP and FCP are seconds,
// INP and TTFB are milliseconds, CLS is unitless.
type CoreWebVitals struct {
	LCP  float64 `json:"lcp"`
	CLS  float64 `json:"cls"`
	INP  float64 `json:"inp"`
	FCP  float64 `json:"fcp"`
	TTFB float64 `json:"ttfb"`
}

type HeadingStructure struct {
	HasH1          bool `json:"hasH1"`
	SingleH1       bool `json:"singleH1"`
	HasSubheadings bool `json:"hasSubheadings"`
	ProperOrder    bool `json:"properOrder"`
	H1Count        int  `json:"h1Count"`
	H2Count        int  `json:"h2Count"`
	H3Count        int  `json:"h3Count"`
}

type MetaSummary struct {
	HasTitle          bool `json:"hasTitle"`
	TitleLength       int  `json:"titleLength"`
	HasDescription    bool `json:"hasDescription"`
	DescriptionLength int  `json:"descriptionLength"`
	HasViewport       bool `json:"hasViewport"`
	HasCanonical      bool `json:"hasCanonical"`
}

// Audit is one failing or borderline upstream check, ranked by Importance
// (1 is most important).
type Audit struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	DisplayValue string  `json:"displayValue,omitempty"`
	Score        float64 `json:"score"`
	Importance   int     `json:"importance"`
}

// PageInsightsResult is the normalized, fully-populated SEO/performance view of a page.
// Scores are 0-100.
type PageInsightsResult struct {
	URL                string           `json:"url"`
	Strategy           Strategy         `json:"strategy"`
	SEOScore           float64          `json:"seoScore"`
	PerformanceScore   float64          `json:"performanceScore"`
	AccessibilityScore float64          `json:"accessibilityScore"`
	BestPracticesScore float64          `json:"bestPracticesScore"`
	Vitals             CoreWebVitals    `json:"coreWebVitals"`
	LoadTime           float64          `json:"loadTime"`
	MobileFriendly     bool             `json:"mobileFriendly"`
	HTTPS              bool             `json:"https"`
	Headings           HeadingStructure `json:"headings"`
	Meta               MetaSummary      `json:"meta"`
	Audits             []Audit          `json:"audits"`
	Source             Source           `json:"source"`
	FetchedAt          time.Time        `json:"fetchedAt"`
}

// AioResult scores how well AI systems can read and reuse a page.
type AioResult struct {
	OverallScore      float64  `json:"overallScore"`
	ClarityScore      float64  `json:"clarityScore"`
	StructureScore    float64  `json:"structureScore"`
	LanguageScore     float64  `json:"languageScore"`
	Topics            []string `json:"topics"`
	ConfusingPassages []string `json:"confusingPassages"`
	Summary           string   `json:"summary,omitempty"`
	Source            Source   `json:"source"`
}

type Recommendation struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SEOImpact   int    `json:"seoImpact"`
	AIOImpact   int    `json:"aioImpact"`
	Priority    int    `json:"priority"`
}

// CombinedAnalysisResult is what a single analysis returns and what the
// analysis cache stores.
type CombinedAnalysisResult struct {
	URL             string             `json:"url"`
	Key             string             `json:"key"`
	Domain          string             `json:"domain"`
	Strategy        Strategy           `json:"strategy"`
	SEO             PageInsightsResult `json:"seo"`
	AIO             AioResult          `json:"aio"`
	SEOScore        float64            `json:"seoScore"`
	AIOScore        float64            `json:"aioScore"`
	Status          HealthStatus       `json:"status"`
	Recommendations []Recommendation   `json:"recommendations"`
	Degraded        bool               `json:"degraded"`
	Notices         []string           `json:"notices,omitempty"`
	AnalyzedAt      time.Time          `json:"analyzedAt"`
}

// Clone returns a copy that shares no slices with r.
func (r CombinedAnalysisResult) Clone() CombinedAnalysisResult {
	r.SEO.Audits = slices.Clone(r.SEO.Audits)
	r.AIO.Topics = slices.Clone(r.AIO.Topics)
	r.AIO.ConfusingPassages = slices.Clone(r.AIO.ConfusingPassages)
	r.Recommendations = slices.Clone(r.Recommendations)
	r.Notices = slices.Clone(r.Notices)
	return r
}
