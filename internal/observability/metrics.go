package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	memorySearchDuration prometheus.Histogram
	memoryAppendDuration prometheus.Histogram
	memoryAppendTotal    *prometheus.CounterVec
	memoryEntriesTotal   prometheus.Gauge

	searchMatchesTotal  *prometheus.CounterVec
	searchDegradedTotal prometheus.Counter

	embeddingRequestsTotal *prometheus.CounterVec
	embeddingTextsTotal    prometheus.Counter
	embeddingCacheLookups  *prometheus.CounterVec
	embeddingCacheEntries  prometheus.Gauge

	transcriptionTotal    *prometheus.CounterVec
	transcriptionDuration prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			memorySearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryAppendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_append_duration_seconds",
					Help:    "Memory append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryAppendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_append_total",
					Help: "Total memory appends by status.",
				},
				[]string{"status"},
			),
			memoryEntriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries_total",
					Help: "Memories in the store at the last read.",
				},
			),
			searchMatchesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_matches_total",
					Help: "Total search matches by phase (lexical, semantic).",
				},
				[]string{"phase"},
			),
			searchDegradedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_search_degraded_total",
					Help: "Searches that fell back to keyword matches because embedding failed.",
				},
			),
			embeddingRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_requests_total",
					Help: "Total embedding provider calls by status.",
				},
				[]string{"status"},
			),
			embeddingTextsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_texts_total",
					Help: "Total texts sent to the embedding provider.",
				},
			),
			embeddingCacheLookups: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "embedding_cache_lookups_total",
					Help: "Embedding cache lookups by result (hit, miss).",
				},
				[]string{"result"},
			),
			embeddingCacheEntries: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "embedding_cache_entries",
					Help: "Embeddings held in the cache.",
				},
			),
			transcriptionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "transcription_total",
					Help: "Total transcriptions by status.",
				},
				[]string{"status"},
			),
			transcriptionDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "transcription_duration_seconds",
					Help:    "Transcription duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total HTTP requests by route and status code.",
				},
				[]string{"route", "code"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds by route.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
		}

		prometheus.MustRegister(
			m.memorySearchDuration,
			m.memoryAppendDuration,
			m.memoryAppendTotal,
			m.memoryEntriesTotal,
			m.searchMatchesTotal,
			m.searchDegradedTotal,
			m.embeddingRequestsTotal,
			m.embeddingTextsTotal,
			m.embeddingCacheLookups,
			m.embeddingCacheEntries,
			m.transcriptionTotal,
			m.transcriptionDuration,
			m.httpRequestsTotal,
			m.httpRequestDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordMemorySearch(duration time.Duration) {
	m := getMetrics()
	m.memorySearchDuration.Observe(duration.Seconds())
}

func RecordMemoryAppend(duration time.Duration, success bool) {
	m := getMetrics()
	m.memoryAppendTotal.WithLabelValues(statusLabel(success)).Inc()
	m.memoryAppendDuration.Observe(duration.Seconds())
}

func SetMemoryEntries(total int) {
	m := getMetrics()
	m.memoryEntriesTotal.Set(float64(total))
}

func RecordSearchMatches(lexical, semantic int) {
	m := getMetrics()
	m.searchMatchesTotal.WithLabelValues("lexical").Add(float64(lexical))
	m.searchMatchesTotal.WithLabelValues("semantic").Add(float64(semantic))
}

func RecordSearchDegraded() {
	m := getMetrics()
	m.searchDegradedTotal.Inc()
}

// RecordEmbeddingRequest records one provider call that embedded texts inputs.
func RecordEmbeddingRequest(texts int, success bool) {
	m := getMetrics()
	m.embeddingRequestsTotal.WithLabelValues(statusLabel(success)).Inc()
	if success {
		m.embeddingTextsTotal.Add(float64(texts))
	}
}

func RecordEmbeddingCache(hits, misses int) {
	m := getMetrics()
	m.embeddingCacheLookups.WithLabelValues("hit").Add(float64(hits))
	m.embeddingCacheLookups.WithLabelValues("miss").Add(float64(misses))
}

func SetEmbeddingCacheEntries(total int) {
	m := getMetrics()
	m.embeddingCacheEntries.Set(float64(total))
}

func RecordTranscription(duration time.Duration, success bool) {
	m := getMetrics()
	m.transcriptionTotal.WithLabelValues(statusLabel(success)).Inc()
	m.transcriptionDuration.Observe(duration.Seconds())
}

func RecordHTTPRequest(route string, code int, duration time.Duration) {
	m := getMetrics()
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
