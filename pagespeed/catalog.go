package pagespeed

// AuditInfo describes an audit the service knows how to rank.
type AuditInfo struct {
	ID         string
	Title      string
	Importance int
}

// defaultImportance applies to audits missing from the catalog.
const defaultImportance = 3

var catalog = []AuditInfo{
	{"largest-contentful-paint", "Largest Contentful Paint", 1},
	{"cumulative-layout-shift", "Cumulative Layout Shift", 1},
	{"total-blocking-time", "Total Blocking Time", 1},
	{"interaction-to-next-paint", "Interaction to Next Paint", 1},
	{"server-response-time", "Reduce initial server response time", 1},
	{"render-blocking-resources", "Eliminate render-blocking resources", 1},
	{"document-title", "Document has a <title> element", 1},
	{"meta-description", "Document has a meta description", 1},
	{"viewport", "Has a <meta name=\"viewport\"> tag", 1},
	{"is-crawlable", "Page isn't blocked from indexing", 1},
	{"http-status-code", "Page has successful HTTP status code", 1},

	{"first-contentful-paint", "First Contentful Paint", 2},
	{"speed-index", "Speed Index", 2},
	{"interactive", "Time to Interactive", 2},
	{"uses-optimized-images", "Efficiently encode images", 2},
	{"modern-image-formats", "Serve images in next-gen formats", 2},
	{"unused-javascript", "Reduce unused JavaScript", 2},
	{"unused-css-rules", "Reduce unused CSS", 2},
	{"uses-text-compression", "Enable text compression", 2},
	{"image-alt", "Image elements have [alt] attributes", 2},
	{"link-text", "Links have descriptive text", 2},
	{"canonical", "Document has a valid rel=canonical", 2},
	{"hreflang", "Document has a valid hreflang", 2},
	{"crawlable-anchors", "Links are crawlable", 2},
	{"robots-txt", "robots.txt is valid", 2},
	{"font-size", "Document uses legible font sizes", 2},
	{"heading-order", "Heading elements appear in a sequentially-descending order", 2},

	{"uses-long-cache-ttl", "Serve static assets with an efficient cache policy", 3},
	{"dom-size", "Avoid an excessive DOM size", 3},
	{"offscreen-images", "Defer offscreen images", 3},
	{"unminified-css", "Minify CSS", 3},
	{"unminified-javascript", "Minify JavaScript", 3},
	{"redirects", "Avoid multiple page redirects", 3},
	{"bootup-time", "Reduce JavaScript execution time", 3},
	{"mainthread-work-breakdown", "Minimize main-thread work", 3},
	{"third-party-summary", "Minimize third-party usage", 3},
	{"legacy-javascript", "Avoid serving legacy JavaScript to modern browsers", 3},
}

var importanceByID = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for _, a := range catalog {
		m[a.ID] = a.Importance
	}
	return m
}()

// Importance returns the ranking tier of an audit id, 1 being most important.
func Importance(id string) int {
	if tier, ok := importanceByID[id]; ok {
		return tier
	}
	return defaultImportance
}

// Catalog returns a copy of the known audits in tier order.
func Catalog() []AuditInfo {
	return append([]AuditInfo(nil), catalog...)
}
