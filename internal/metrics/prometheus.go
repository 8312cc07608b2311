package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groundwork"

// Prometheus holds the exported series on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	retrievalTier   *prometheus.CounterVec
	turns           *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	citations       *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	ingestChunks    *prometheus.CounterVec
	backfillItems   *prometheus.CounterVec
	tasks           *prometheus.CounterVec
}

// NewPrometheus registers all series on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		retrievalTier: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "tier_total",
				Help:      "Retrievals per store by the tier that served them",
			},
			[]string{"store", "tier"},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "turns_total",
				Help:      "Completed chat turns by outcome",
			},
			[]string{"status"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "turn_duration_seconds",
				Help:      "End to end chat turn latency",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 120},
			},
			[]string{"status"},
		),
		citations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "citations_total",
				Help:      "Turns by how provenance was attributed",
			},
			[]string{"mode"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Latency of embedding, search and generation calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		ingestChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "chunks_total",
				Help:      "Ingested chunks by outcome",
			},
			[]string{"outcome"},
		),
		backfillItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backfill",
				Name:      "items_total",
				Help:      "Backfilled embeddings by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "finished_total",
				Help:      "Background jobs by type and final status",
			},
			[]string{"type", "status"},
		),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.retrievalTier,
		p.turns,
		p.turnDuration,
		p.citations,
		p.providerLatency,
		p.ingestChunks,
		p.backfillItems,
		p.tasks,
	)
	return p
}

// Registry exposes the private registry (for tests and custom handlers).
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
