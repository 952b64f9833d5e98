package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHistogramBucketsAreCumulative(t *testing.T) {
	h := newHistogram([]float64{10, 100})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	snap := h.Snapshot()
	assert.Equal(t, []uint64{1, 1}, snap.counts)
	assert.Equal(t, uint64(3), snap.count)

	var buf bytes.Buffer
	writeHistogram(&buf, "x", "help", snap)
	out := buf.String()
	assert.Contains(t, out, `x_bucket{le="10"} 1`)
	assert.Contains(t, out, `x_bucket{le="100"} 2`)
	assert.Contains(t, out, `x_bucket{le="+Inf"} 3`)
	assert.Contains(t, out, "x_sum 555")
}

func TestHandlerRendersCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	IncAnalysisStarted()
	IncFallback("missing_credential")
	IncHTTPRequest(http.StatusOK)
	AddBulk(4, 1)

	r := gin.New()
	r.GET("/metrics", Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	body := w.Body.String()
	assert.Contains(t, body, "# TYPE insights_analysis_started_total counter")
	assert.Contains(t, body, `insights_fallbacks_total{reason="missing_credential"}`)
	assert.Contains(t, body, `insights_http_requests_total{code="200"}`)
	assert.Contains(t, body, "insights_analysis_duration_ms_count")
}
