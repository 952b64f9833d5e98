package pagespeed

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/seo-optimizer/insights/models"
)

// Defaults used when a report omits a value.
const (
	DefaultCategoryScore = 50.0
	DefaultLCP           = 4.0
	DefaultCLS           = 0.15
	DefaultINP           = 250.0
	DefaultFCP           = 2.5
	DefaultTTFB          = 600.0
	DefaultLoadTime      = 5.0

	// GoodAuditScore is the Lighthouse pass mark; audits at or above it are dropped.
	GoodAuditScore = 0.9
	// MaxAudits bounds the number of audits kept on a result.
	MaxAudits = 8
)

var skippedDisplayModes = map[string]bool{
	"informative":   true,
	"notApplicable": true,
	"manual":        true,
	"error":         true,
}

// Normalize maps a raw report onto a PageInsightsResult with every field set.
// A nil payload yields an all-defaults result.
func Normalize(p *Payload, pageURL string, strategy models.Strategy, fetchedAt time.Time) models.PageInsightsResult {
	var lh LighthouseResult
	if p != nil && p.LighthouseResult != nil {
		lh = *p.LighthouseResult
	}

	res := models.PageInsightsResult{
		URL:                pageURL,
		Strategy:           strategy,
		SEOScore:           categoryScore(lh.Categories, "seo"),
		PerformanceScore:   categoryScore(lh.Categories, "performance"),
		AccessibilityScore: categoryScore(lh.Categories, "accessibility"),
		BestPracticesScore: categoryScore(lh.Categories, "best-practices"),
		Source:             models.SourcePageSpeed,
		FetchedAt:          fetchedAt,
	}

	res.Vitals = models.CoreWebVitals{
		LCP:  round(numeric(lh.Audits, "largest-contentful-paint", DefaultLCP*1000)/1000, 2),
		CLS:  round(numeric(lh.Audits, "cumulative-layout-shift", DefaultCLS), 3),
		INP:  round(interaction(p, lh.Audits), 0),
		FCP:  round(numeric(lh.Audits, "first-contentful-paint", DefaultFCP*1000)/1000, 2),
		TTFB: round(numeric(lh.Audits, "server-response-time", DefaultTTFB), 0),
	}
	res.LoadTime = round(numeric(lh.Audits, "interactive", DefaultLoadTime*1000)/1000, 2)

	res.MobileFriendly = passed(lh.Audits, "viewport", false)
	finalURL := lh.FinalURL
	if finalURL == "" {
		finalURL = pageURL
	}
	res.HTTPS = passed(lh.Audits, "is-on-https", strings.HasPrefix(strings.ToLower(finalURL), "https://"))

	res.Meta = models.MetaSummary{
		HasTitle:       passed(lh.Audits, "document-title", false),
		HasDescription: passed(lh.Audits, "meta-description", false),
		HasViewport:    passed(lh.Audits, "viewport", false),
		HasCanonical:   passed(lh.Audits, "canonical", false),
	}

	// Lighthouse reports heading order only; counts come from a page snapshot when one is available.
	res.Headings = models.HeadingStructure{
		HasH1:          true,
		SingleH1:       true,
		HasSubheadings: true,
		ProperOrder:    passed(lh.Audits, "heading-order", true),
	}

	res.Audits = RankAudits(collectAudits(lh.Audits), MaxAudits)
	return res
}

// RankAudits orders audits by importance tier, then by lower score, then by
// id, and keeps at most limit of them.
func RankAudits(audits []models.Audit, limit int) []models.Audit {
	sort.SliceStable(audits, func(i, j int) bool {
		a, b := audits[i], audits[j]
		if a.Importance != b.Importance {
			return a.Importance < b.Importance
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(audits) > limit {
		audits = audits[:limit]
	}
	if audits == nil {
		audits = []models.Audit{}
	}
	return audits
}

func collectAudits(raw map[string]*RawAudit) []models.Audit {
	out := make([]models.Audit, 0, len(raw))
	for key, a := range raw {
		if a == nil || a.Score == nil || skippedDisplayModes[a.ScoreDisplayMode] {
			continue
		}
		if *a.Score >= GoodAuditScore {
			continue
		}
		id := a.ID
		if id == "" {
			id = key
		}
		title := a.Title
		if title == "" {
			title = id
		}
		out = append(out, models.Audit{
			ID:           id,
			Title:        title,
			Description:  a.Description,
			DisplayValue: a.DisplayValue,
			Score:        round(*a.Score*100, 0),
			Importance:   Importance(id),
		})
	}
	return out
}

func categoryScore(cats map[string]*Category, id string) float64 {
	if c, ok := cats[id]; ok && c != nil && c.Score != nil {
		return clamp(round(*c.Score*100, 0), 0, 100)
	}
	return DefaultCategoryScore
}

func numeric(audits map[string]*RawAudit, id string, def float64) float64 {
	if a, ok := audits[id]; ok && a != nil && a.NumericValue != nil && *a.NumericValue >= 0 {
		return *a.NumericValue
	}
	return def
}

func passed(audits map[string]*RawAudit, id string, def bool) bool {
	if a, ok := audits[id]; ok && a != nil && a.Score != nil {
		return *a.Score >= 1
	}
	return def
}

// interaction prefers lab INP, then field INP, then the default.
func interaction(p *Payload, audits map[string]*RawAudit) float64 {
	if a, ok := audits["interaction-to-next-paint"]; ok && a != nil && a.NumericValue != nil {
		return *a.NumericValue
	}
	if p != nil && p.LoadingExperience != nil {
		if m, ok := p.LoadingExperience.Metrics["INTERACTION_TO_NEXT_PAINT"]; ok && m != nil && m.Percentile != nil {
			return *m.Percentile
		}
	}
	return DefaultINP
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
