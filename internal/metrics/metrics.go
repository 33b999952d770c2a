package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llmgateway"

// Metrics holds the gateway collectors on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry        *prometheus.Registry
	chatTurns       *prometheus.CounterVec
	pipelineRuns    *prometheus.CounterVec
	extractions     *prometheus.CounterVec
	persistRetries  *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns relayed, by outcome.",
		}, []string{"outcome"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Document pipeline runs, by action and outcome.",
		}, []string{"action", "outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Text extraction engine attempts, by format, engine and outcome.",
		}, []string{"format", "engine", "outcome"}),
		persistRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_retries_total",
			Help:      "Retried writes after an LLM call, by record kind.",
		}, []string{"record"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "LLM upstream latency, by mode and outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.chatTurns,
		m.pipelineRuns,
		m.extractions,
		m.persistRetries,
		m.upstreamLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PipelineRun(action, outcome string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(action, outcome).Inc()
}

// Extraction matches the extract.Observer signature.
func (m *Metrics) Extraction(format, engine string, err error) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(format, engine, outcome(err)).Inc()
}

func (m *Metrics) PersistRetry(record string) {
	if m == nil {
		return
	}
	m.persistRetries.WithLabelValues(record).Inc()
}

// Upstream matches the ai.OllamaClient observer signature.
func (m *Metrics) Upstream(mode string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(mode, outcome(err)).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
