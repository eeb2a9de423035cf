package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveConversations prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	Messages            *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
	BackendCalls        *prometheus.CounterVec
	BackendLatency      *prometheus.HistogramVec
	Fallbacks           *prometheus.CounterVec
	Compactions         *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	TurnLatency         prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of travelers with a conversation active within the idle timeout.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Conversation session events by type.",
		}, []string{"event"}),
		Messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Handled traveler messages by transport and reply action.",
		}, []string{"transport", "action"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		BackendCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Text-generation backend calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_ms",
			Help:      "Text-generation backend latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"purpose"}),
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Local fallbacks taken after backend failure, by component.",
		}, []string{"component"}),
		Compactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_compactions_total",
			Help:      "History compactions by summarization path.",
		}, []string{"path"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Record store failures by operation.",
		}, []string{"op"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end message handling latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		stages: newStageWindow(256),
	}
}

// ObserveGeneration records one backend call.
func (m *Metrics) ObserveGeneration(purpose, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendCalls.WithLabelValues(purpose, outcome).Inc()
	m.BackendLatency.WithLabelValues(purpose).Observe(float64(d.Milliseconds()))
}

// ObserveFallback counts a local fallback taken by component.
func (m *Metrics) ObserveFallback(component string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(component).Inc()
}

// ObserveCompaction counts a history compaction by path (summarized|fallback).
func (m *Metrics) ObserveCompaction(path string) {
	if m == nil {
		return
	}
	m.Compactions.WithLabelValues(path).Inc()
}

// ObserveStoreError counts a failed store operation.
func (m *Metrics) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

// ObserveStage records a pipeline stage duration in the latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.stages.Observe(stage, ms)
	if stage == StageTurnTotal {
		m.TurnLatency.Observe(ms)
	}
}

// ObserveSession counts a conversation session event and updates the active gauge.
func (m *Metrics) ObserveSession(event string, active int) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
	m.ActiveConversations.Set(float64(active))
}

// ObserveMessage counts a handled message.
func (m *Metrics) ObserveMessage(transport, action string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(transport, action).Inc()
	m.stages.Count("action:" + action)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return newStageWindow(0).Snapshot()
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
