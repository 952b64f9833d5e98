package pagespeed

// Payload is the subset of the PageSpeed Insights v5 response this service
// reads. Every field may be absent.
type Payload struct {
	ID                string             `json:"id"`
	LighthouseResult  *LighthouseResult  `json:"lighthouseResult"`
	LoadingExperience *LoadingExperience `json:"loadingExperience,omitempty"`
}

type LighthouseResult struct {
	RequestedURL string               `json:"requestedUrl"`
	FinalURL     string               `json:"finalUrl"`
	Categories   map[string]*Category `json:"categories"`
	Audits       map[string]*RawAudit `json:"audits"`
}

type Category struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Score *float64 `json:"score"`
}

type RawAudit struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Score            *float64 `json:"score"`
	ScoreDisplayMode string   `json:"scoreDisplayMode"`
	DisplayValue     string   `json:"displayValue"`
	NumericValue     *float64 `json:"numericValue"`
}

// LoadingExperience carries field (CrUX) data when the origin has enough traffic.
type LoadingExperience struct {
	OverallCategory string                  `json:"overall_category"`
	Metrics         map[string]*FieldMetric `json:"metrics"`
}

type FieldMetric struct {
	Percentile *float64 `json:"percentile"`
	Category   string   `json:"category"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
