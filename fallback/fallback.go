// Package fallback produces plausible, reproducible results for pages the
// upstream services could not analyze. The same URL always yields the same
// numbers, so cached and recomputed fallbacks agree.
package fallback

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/pagespeed"
	"github.com/seo-optimizer/insights/urlkey"
)

// Score ranges, inclusive.
const (
	MinSEOScore         = 60
	MaxSEOScore         = 90
	MinPerformanceScore = 50
	MaxPerformanceScore = 90
	MinAIOScore         = 55
	MaxAIOScore         = 90

	minAudits = 3
	maxAudits = 6
)

var topicPool = []string{
	"product overview", "pricing", "customer support", "company history",
	"how-to guides", "case studies", "integrations", "security practices",
	"industry news", "frequently asked questions",
}

var confusingPool = []string{
	"Long introductory paragraph without a clear main claim.",
	"Key terms are used before they are defined.",
	"Feature list mixes benefits and technical details.",
	"Call to action is separated from the content it refers to.",
}

// Synthesizer builds fallback results. The zero value is ready to use.
type Synthesizer struct {
	// Now stamps FetchedAt; defaults to time.Now.
	Now func() time.Time
}

// Hash is a 31-multiplier rolling string hash. It only seeds the generator and
// is not meant to be collision resistant.
func Hash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

func generator(seedText string) *rand.Rand {
	seed := uint64(Hash(seedText))
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func between(r *rand.Rand, lo, hi int) float64 {
	return float64(lo + r.IntN(hi-lo+1))
}

func spread(r *rand.Rand, lo, hi float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round((lo+r.Float64()*(hi-lo))*pow) / pow
}

func canonical(rawURL string) string {
	if n, err := urlkey.Normalize(rawURL); err == nil {
		return n
	}
	return rawURL
}

func (s Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PageInsights synthesizes an SEO/performance result for rawURL.
func (s Synthesizer) PageInsights(rawURL string, strategy models.Strategy) models.PageInsightsResult {
	u := canonical(rawURL)
	r := generator(u + "|" + string(strategy))

	res := models.PageInsightsResult{
		URL:                rawURL,
		Strategy:           strategy,
		SEOScore:           between(r, MinSEOScore, MaxSEOScore),
		PerformanceScore:   between(r, MinPerformanceScore, MaxPerformanceScore),
		AccessibilityScore: between(r, 60, 95),
		BestPracticesScore: between(r, 60, 95),
		Vitals: models.CoreWebVitals{
			LCP:  spread(r, 1.5, 5.0, 2),
			CLS:  spread(r, 0.02, 0.30, 3),
			INP:  between(r, 100, 500),
			FCP:  spread(r, 0.8, 3.0, 2),
			TTFB: between(r, 100, 800),
		},
		HTTPS:     true,
		Source:    models.SourceSynthetic,
		FetchedAt: s.now(),
	}
	res.LoadTime = math.Round((res.Vitals.LCP+spread(r, 0.5, 2.0, 2))*100) / 100
	res.MobileFriendly = r.IntN(10) < 8

	h1Count := r.IntN(3)
	res.Headings = models.HeadingStructure{
		HasH1:          h1Count > 0,
		SingleH1:       h1Count == 1,
		HasSubheadings: r.IntN(10) < 7,
		ProperOrder:    r.IntN(10) < 6,
		H1Count:        h1Count,
		H2Count:        r.IntN(6),
		H3Count:        r.IntN(8),
	}
	res.Meta = models.MetaSummary{
		HasTitle:       true,
		TitleLength:    25 + r.IntN(46),
		HasDescription: r.IntN(10) < 7,
		HasViewport:    res.MobileFriendly,
		HasCanonical:   r.IntN(2) == 0,
	}
	if res.Meta.HasDescription {
		res.Meta.DescriptionLength = 80 + r.IntN(101)
	}

	res.Audits = pagespeed.RankAudits(pickAudits(r), pagespeed.MaxAudits)
	return res
}

// pickAudits draws a reproducible subset of the audit catalog.
func pickAudits(r *rand.Rand) []models.Audit {
	pool := pagespeed.Catalog()
	n := minAudits + r.IntN(maxAudits-minAudits+1)
	audits := make([]models.Audit, 0, n)
	for _, idx := range r.Perm(len(pool))[:n] {
		info := pool[idx]
		audits = append(audits, models.Audit{
			ID:         info.ID,
			Title:      info.Title,
			Score:      between(r, 0, 89),
			Importance: info.Importance,
		})
	}
	return audits
}

// Aio synthesizes an AI-readability result for rawURL.
func (s Synthesizer) Aio(rawURL string) models.AioResult {
	r := generator(canonical(rawURL) + "|aio")

	res := models.AioResult{
		OverallScore:   between(r, MinAIOScore, MaxAIOScore),
		ClarityScore:   between(r, 50, 95),
		StructureScore: between(r, 50, 95),
		LanguageScore:  between(r, 50, 95),
		Summary:        "Estimated readability; no AI analysis was available for this page.",
		Source:         models.SourceSynthetic,
	}

	res.Topics = make([]string, 0, 3)
	for _, idx := range r.Perm(len(topicPool))[:3] {
		res.Topics = append(res.Topics, topicPool[idx])
	}
	res.ConfusingPassages = []string{}
	for _, idx := range r.Perm(len(confusingPool))[:r.IntN(3)] {
		res.ConfusingPassages = append(res.ConfusingPassages, confusingPool[idx])
	}
	return res
}
