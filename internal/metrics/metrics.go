package metrics

import "time"

// Metrics feeds both the in-memory Collector and the Prometheus series.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	collector  *Collector
	prometheus *Prometheus
}

// New creates a Metrics with a fresh collector and registry.
func New() *Metrics {
	return &Metrics{
		collector:  NewCollector(),
		prometheus: NewPrometheus(),
	}
}

// Collector returns the in-memory collector.
func (m *Metrics) Collector() *Collector {
	if m == nil {
		return nil
	}
	return m.collector
}

// Prometheus returns the exported series.
func (m *Metrics) Prometheus() *Prometheus {
	if m == nil {
		return nil
	}
	return m.prometheus
}

// Snapshot returns the collector snapshot, or an empty one for a nil receiver.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return m.collector.Snapshot()
}

// ObserveCall records the latency of one provider or store call.
func (m *Metrics) ObserveCall(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.collector.RecordTiming(op, d)
	m.prometheus.providerLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveLLM records a generation call with token usage.
func (m *Metrics) ObserveLLM(op string, d time.Duration, inputTokens, outputTokens int64) {
	if m == nil {
		return
	}
	m.collector.RecordLLMUsage(op, d, inputTokens, outputTokens)
	m.prometheus.providerLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordTier counts which tier served a store for one retrieval.
func (m *Metrics) RecordTier(store, tier string) {
	if m == nil {
		return
	}
	m.collector.RecordTier(store, tier)
	m.prometheus.retrievalTier.WithLabelValues(store, tier).Inc()
}

// RecordTurn records a finished chat turn.
func (m *Metrics) RecordTurn(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.collector.RecordTiming(OpTurn, d)
	m.prometheus.turns.WithLabelValues(status).Inc()
	m.prometheus.turnDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordCitation counts how a turn's provenance was attributed.
func (m *Metrics) RecordCitation(mode string) {
	if m == nil {
		return
	}
	m.prometheus.citations.WithLabelValues(mode).Inc()
}

// RecordIngest adds the chunk outcomes of one ingestion run.
func (m *Metrics) RecordIngest(created, failed, unembedded int) {
	if m == nil {
		return
	}
	m.prometheus.ingestChunks.WithLabelValues("created").Add(float64(created))
	m.prometheus.ingestChunks.WithLabelValues("failed").Add(float64(failed))
	m.prometheus.ingestChunks.WithLabelValues("unembedded").Add(float64(unembedded))
}

// RecordBackfill counts one backfilled item.
func (m *Metrics) RecordBackfill(kind string, ok bool) {
	if m == nil {
		return
	}
	m.prometheus.backfillItems.WithLabelValues(kind, outcome(ok)).Inc()
}

// RecordJob counts a background job reaching a final status.
func (m *Metrics) RecordJob(jobType, status string) {
	if m == nil {
		return
	}
	m.prometheus.tasks.WithLabelValues(jobType, status).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
