// Package metrics exposes process counters in Prometheus text format.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysisStartedTotal   atomic.Uint64
	analysisCompletedTotal atomic.Uint64
	analysisDegradedTotal  atomic.Uint64
	resultCacheHitsTotal   atomic.Uint64
	resultCacheMissesTotal atomic.Uint64
	upstreamCallsTotal     atomic.Uint64
	upstreamErrorsTotal    atomic.Uint64
	bulkSucceededTotal     atomic.Uint64
	bulkFailedTotal        atomic.Uint64

	fallbacks    = newLabeled()
	httpRequests = newLabeled()

	analysisDuration = newHistogram([]float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000})
)

func IncAnalysisStarted()   { analysisStartedTotal.Add(1) }
func IncAnalysisCompleted() { analysisCompletedTotal.Add(1) }
func IncAnalysisDegraded()  { analysisDegradedTotal.Add(1) }

// IncResultCache counts a lookup in the combined-result cache.
func IncResultCache(hit bool) {
	if hit {
		resultCacheHitsTotal.Add(1)
		return
	}
	resultCacheMissesTotal.Add(1)
}

func IncUpstreamCall()  { upstreamCallsTotal.Add(1) }
func IncUpstreamError() { upstreamErrorsTotal.Add(1) }

// IncFallback counts a synthetic substitution, labelled by the reason
// (missing_credential, timeout, upstream_error, panic).
func IncFallback(reason string) { fallbacks.inc(reason) }

// AddBulk adds the outcome counts of a finished bulk run.
func AddBulk(succeeded, failed int) {
	if succeeded > 0 {
		bulkSucceededTotal.Add(uint64(succeeded))
	}
	if failed > 0 {
		bulkFailedTotal.Add(uint64(failed))
	}
}

// IncHTTPRequest counts a served request by status code.
func IncHTTPRequest(status int) { httpRequests.inc(strconv.Itoa(status)) }

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "insights_analysis_started_total", "Total analyses started", analysisStartedTotal.Load())
	writeCounter(&buf, "insights_analysis_completed_total", "Total analyses completed", analysisCompletedTotal.Load())
	writeCounter(&buf, "insights_analysis_degraded_total", "Analyses that used at least one synthetic result", analysisDegradedTotal.Load())
	writeCounter(&buf, "insights_result_cache_hits_total", "Combined-result cache hits", resultCacheHitsTotal.Load())
	writeCounter(&buf, "insights_result_cache_misses_total", "Combined-result cache misses", resultCacheMissesTotal.Load())
	writeCounter(&buf, "insights_upstream_calls_total", "Calls made to insight providers", upstreamCallsTotal.Load())
	writeCounter(&buf, "insights_upstream_errors_total", "Failed calls to insight providers", upstreamErrorsTotal.Load())
	writeCounter(&buf, "insights_bulk_succeeded_total", "Bulk items analyzed and stored", bulkSucceededTotal.Load())
	writeCounter(&buf, "insights_bulk_failed_total", "Bulk items that failed", bulkFailedTotal.Load())
	writeLabeled(&buf, "insights_fallbacks_total", "Synthetic substitutions by reason", "reason", fallbacks.snapshot())
	writeLabeled(&buf, "insights_http_requests_total", "HTTP requests by status code", "code", httpRequests.snapshot())
	writeHistogram(&buf, "insights_analysis_duration_ms", "Analysis duration in milliseconds", analysisDuration.Snapshot())
	return buf.String()
}

type labeled struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func newLabeled() *labeled {
	return &labeled{counts: make(map[string]uint64)}
}

func (l *labeled) inc(label string) {
	l.mu.Lock()
	l.counts[label]++
	l.mu.Unlock()
}

func (l *labeled) snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts value in the first bucket that holds it; Render accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeled(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
