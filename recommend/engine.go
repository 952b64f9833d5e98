// Package recommend derives a health status and an ordered list of
// recommendations from SEO and AIO results.
package recommend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seo-optimizer/insights/models"
)

const (
	HealthyThreshold          = 80.0
	NeedsImprovementThreshold = 60.0
)

// Classify maps the mean of the two scores onto a status.
func Classify(seoScore, aioScore float64) models.HealthStatus {
	mean := (seoScore + aioScore) / 2
	switch {
	case mean >= HealthyThreshold:
		return models.StatusHealthy
	case mean >= NeedsImprovementThreshold:
		return models.StatusNeedsImprovement
	default:
		return models.StatusCritical
	}
}

type seoRule struct {
	rec   models.Recommendation
	check func(*models.PageInsightsResult) bool
	// detail, when set, replaces the description with one built from the input.
	detail func(*models.PageInsightsResult) string
}

type aioRule struct {
	rec   models.Recommendation
	check func(*models.AioResult) bool
}

func rec(id, category, title, desc string, seoImpact, aioImpact, priority int) models.Recommendation {
	return models.Recommendation{
		ID:          id,
		Category:    category,
		Title:       title,
		Description: desc,
		SEOImpact:   seoImpact,
		AIOImpact:   aioImpact,
		Priority:    priority,
	}
}

var seoRules = []seoRule{
	{
		rec: rec("no-https", "security", "Serve the page over HTTPS",
			"Search engines rank insecure pages lower and browsers flag them.", 8, 5, 10),
		check: func(p *models.PageInsightsResult) bool { return !p.HTTPS },
	},
	{
		rec: rec("low-performance", "performance", "Improve overall page performance",
			"The performance score is below 50.", 9, 3, 10),
		check: func(p *models.PageInsightsResult) bool { return p.PerformanceScore < 50 },
	},
	{
		rec: rec("not-mobile-friendly", "mobile", "Make the page mobile friendly",
			"Add a responsive viewport and layout; most searches happen on phones.", 9, 4, 9),
		check: func(p *models.PageInsightsResult) bool { return !p.MobileFriendly },
	},
	{
		rec: rec("slow-lcp", "performance", "Speed up Largest Contentful Paint",
			"Largest Contentful Paint is slower than 2.5s.", 8, 3, 9),
		check: func(p *models.PageInsightsResult) bool { return p.Vitals.LCP > 2.5 },
		detail: func(p *models.PageInsightsResult) string {
			return fmt.Sprintf("Largest Contentful Paint is %.1fs; aim for 2.5s or less by optimizing the hero image and server response.", p.Vitals.LCP)
		},
	},
	{
		rec: rec("critical-audits", "performance", "Fix failing high-impact audits",
			"Several of the most important audits are failing.", 7, 2, 8),
		check: func(p *models.PageInsightsResult) bool { return len(criticalAudits(p)) > 0 },
		detail: func(p *models.PageInsightsResult) string {
			return "Failing: " + strings.Join(criticalAudits(p), ", ") + "."
		},
	},
	{
		rec: rec("missing-title", "content", "Add a descriptive title tag",
			"The page has no usable <title>; it is the strongest on-page ranking signal.", 7, 6, 8),
		check: func(p *models.PageInsightsResult) bool { return !p.Meta.HasTitle },
	},
	{
		rec: rec("layout-shift", "performance", "Reduce layout shift",
			"Cumulative Layout Shift is above 0.1; reserve space for images and embeds.", 6, 2, 7),
		check: func(p *models.PageInsightsResult) bool { return p.Vitals.CLS > 0.1 },
	},
	{
		rec: rec("missing-meta-description", "content", "Write a meta description",
			"A 120-160 character description improves click-through and gives AI summaries a source.", 6, 5, 7),
		check: func(p *models.PageInsightsResult) bool { return !p.Meta.HasDescription },
	},
	{
		rec: rec("missing-h1", "structure", "Add an H1 heading",
			"A single H1 tells crawlers and language models what the page is about.", 6, 7, 7),
		check: func(p *models.PageInsightsResult) bool { return !p.Headings.HasH1 },
	},
	{
		rec: rec("slow-interaction", "performance", "Improve responsiveness",
			"Interaction to Next Paint is above 200ms; break up long tasks.", 5, 1, 6),
		check: func(p *models.PageInsightsResult) bool { return p.Vitals.INP > 200 },
	},
	{
		rec: rec("multiple-h1", "structure", "Use only one H1 heading",
			"Multiple H1 headings dilute the main topic of the page.", 4, 5, 5),
		check: func(p *models.PageInsightsResult) bool { return p.Headings.HasH1 && !p.Headings.SingleH1 },
	},
	{
		rec: rec("heading-order", "structure", "Fix heading hierarchy",
			"Headings skip levels; keep H2 under H1 and H3 under H2.", 3, 6, 5),
		check: func(p *models.PageInsightsResult) bool { return !p.Headings.ProperOrder },
	},
	{
		rec: rec("missing-canonical", "technical", "Declare a canonical URL",
			"Without rel=canonical duplicate URLs can split ranking signals.", 4, 1, 4),
		check: func(p *models.PageInsightsResult) bool { return !p.Meta.HasCanonical },
	},
	{
		rec: rec("low-accessibility", "accessibility", "Address accessibility issues",
			"The accessibility score is below 80; fix contrast, labels and alt text.", 3, 4, 4),
		check: func(p *models.PageInsightsResult) bool { return p.AccessibilityScore < 80 },
	},
}

var aioRules = []aioRule{
	{
		rec: rec("low-aio-score", "aio", "Rework content for AI readability",
			"AI systems struggle to extract clear answers from this page.", 3, 9, 9),
		check: func(a *models.AioResult) bool { return a.OverallScore < 60 },
	},
	{
		rec: rec("low-clarity", "aio", "State the main point early",
			"Open each section with a direct answer before supporting detail.", 2, 9, 8),
		check: func(a *models.AioResult) bool { return a.ClarityScore < 70 },
	},
	{
		rec: rec("weak-structure", "aio", "Add structure to long content",
			"Use descriptive subheadings, lists and short paragraphs.", 4, 8, 7),
		check: func(a *models.AioResult) bool { return a.StructureScore < 70 },
	},
	{
		rec: rec("complex-language", "aio", "Simplify the language",
			"Shorter sentences and defined terms are easier to quote accurately.", 1, 7, 6),
		check: func(a *models.AioResult) bool { return a.LanguageScore < 70 },
	},
	{
		rec: rec("confusing-passages", "aio", "Rewrite confusing passages",
			"Some passages were flagged as hard to interpret.", 1, 6, 5),
		check: func(a *models.AioResult) bool { return len(a.ConfusingPassages) > 0 },
	},
	{
		rec: rec("few-topics", "aio", "Cover the core topics explicitly",
			"Fewer than three clear topics were detected.", 2, 5, 4),
		check: func(a *models.AioResult) bool { return len(a.Topics) < 3 },
	},
}

// Build runs every rule in declaration order, SEO rules first. Rules whose
// input is nil are skipped. The result is never nil.
func Build(seo *models.PageInsightsResult, aio *models.AioResult) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(seoRules)+len(aioRules))
	if seo != nil {
		for _, r := range seoRules {
			if !r.check(seo) {
				continue
			}
			item := r.rec
			if r.detail != nil {
				item.Description = r.detail(seo)
			}
			out = append(out, item)
		}
	}
	if aio != nil {
		for _, r := range aioRules {
			if r.check(aio) {
				out = append(out, r.rec)
			}
		}
	}
	return out
}

// SortByPriority orders recommendations by descending priority, keeping
// declaration order among equals.
func SortByPriority(recs []models.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority > recs[j].Priority
	})
}

func criticalAudits(p *models.PageInsightsResult) []string {
	var titles []string
	for _, a := range p.Audits {
		if a.Importance == 1 {
			titles = append(titles, a.Title)
		}
	}
	return titles
}
