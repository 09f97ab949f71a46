// Package metrics exposes Prometheus collectors for ingestion and queries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal   *prometheus.CounterVec
	ingestStage   *prometheus.HistogramVec
	queryTotal    *prometheus.CounterVec
	topScore      prometheus.Histogram
	ocrPagesTotal prometheus.Counter
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_ingest_total",
			Help: "Document ingestions by outcome.",
		}, []string{"outcome"}),
		ingestStage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docqa_ingest_stage_seconds",
			Help:    "Duration of each ingestion stage.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_query_total",
			Help: "Questions answered, by outcome (answered, no_documents, low_confidence, error).",
		}, []string{"outcome"}),
		topScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_retrieval_top_score",
			Help:    "Best similarity score per retrieval.",
			Buckets: prometheus.LinearBuckets(-0.2, 0.1, 13),
		}),
		ocrPagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docqa_ocr_pages_total",
			Help: "PDF pages whose text came from OCR.",
		}),
	}

	m.registry.MustRegister(
		m.ingestTotal,
		m.ingestStage,
		m.queryTotal,
		m.topScore,
		m.ocrPagesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IngestDone(outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IngestStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestStage.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) OCRPages(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ocrPagesTotal.Add(float64(n))
}

func (m *Metrics) QueryDone(outcome string) {
	if m == nil {
		return
	}
	m.queryTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TopScore(score float32) {
	if m == nil {
		return
	}
	m.topScore.Observe(float64(score))
}
