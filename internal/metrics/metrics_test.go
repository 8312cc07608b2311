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

func TestCollector_RecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpEmbedding, 10*time.Millisecond)
	c.RecordTiming(OpEmbedding, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Embedding)
	assert.Equal(t, int64(2), snap.Embedding.Count)
	assert.Equal(t, int64(10), snap.Embedding.MinTimeMs)
	assert.Equal(t, int64(30), snap.Embedding.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.Embedding.AvgTimeMs, 0.001)
	assert.Nil(t, snap.LLMStream)
}

func TestCollector_RecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMStream, time.Second, 100, 40)
	c.RecordLLMUsage(OpLLMStream, time.Second, 300, 60)

	snap := c.Snapshot().LLMStream
	require.NotNil(t, snap)
	require.NotNil(t, snap.TotalInputTokens)
	assert.Equal(t, int64(400), *snap.TotalInputTokens)
	assert.Equal(t, int64(100), *snap.MinInputTokens)
	assert.Equal(t, int64(60), *snap.MaxOutputTokens)
	assert.InDelta(t, 50.0, *snap.AvgOutputTokens, 0.001)
}

func TestMetrics_RecordTier(t *testing.T) {
	m := New()
	m.RecordTier("memories", "vector")
	m.RecordTier("memories", "keyword")
	m.RecordTier("memories", "keyword")

	assert.Equal(t, int64(2), m.Snapshot().Tiers["memories/keyword"])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Prometheus().retrievalTier.WithLabelValues("memories", "keyword")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Prometheus().retrievalTier.WithLabelValues("memories", "vector")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCall(OpEmbedding, time.Millisecond)
		m.ObserveLLM(OpLLMStream, time.Millisecond, 1, 1)
		m.RecordTier("chunks", "vector")
		m.RecordTurn("ok", time.Second)
		m.RecordCitation("fallback")
		m.RecordIngest(1, 2, 3)
		m.RecordBackfill("memory", true)
		m.RecordJob("ingest", "completed")
	})
	assert.Nil(t, m.Snapshot().Embedding)
}

func TestPrometheus_Handler(t *testing.T) {
	m := New()
	m.RecordBackfill("chunk", false)
	m.RecordIngest(3, 1, 0)

	rec := httptest.NewRecorder()
	m.Prometheus().Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `groundwork_backfill_items_total{kind="chunk",outcome="failure"} 1`)
	assert.Contains(t, string(body), `groundwork_ingest_chunks_total{outcome="created"} 3`)
}
