package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IngestDone("ok")
	m.IngestDone("ok")
	m.IngestDone("error")
	m.QueryDone("low_confidence")
	m.OCRPages(3)
	m.OCRPages(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queryTotal.WithLabelValues("low_confidence")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ocrPagesTotal))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IngestStage("extracted", 12*time.Millisecond)
	m.TopScore(0.42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docqa_ingest_stage_seconds_count{stage="extracted"} 1`)
	assert.Contains(t, string(body), "docqa_retrieval_top_score_count 1")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IngestDone("ok")
		m.IngestStage("chunked", time.Second)
		m.QueryDone("answered")
		m.TopScore(1)
		m.OCRPages(2)
	})
}
