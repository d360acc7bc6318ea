package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatRequests      *prometheus.CounterVec
	ChatLatency       prometheus.Histogram
	CapabilityCalls   *prometheus.CounterVec
	OracleErrors      *prometheus.CounterVec
	SemanticSearches  *prometheus.CounterVec
	ActiveChatSockets prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	BadgesAwarded     prometheus.Counter
	EmbeddingBackfill *prometheus.CounterVec

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat messages handled by outcome.",
		}, []string{"outcome"}),
		ChatLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_ms",
			Help:      "End-to-end chat message latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 3000, 5000, 8000, 13000},
		}),
		CapabilityCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Capability invocations requested by the language model.",
		}, []string{"capability", "kind"}),
		OracleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_errors_total",
			Help:      "Language model and embedding failures by stage.",
		}, []string{"stage"}),
		SemanticSearches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_searches_total",
			Help:      "Event searches by resolution path.",
		}, []string{"path"}),
		ActiveChatSockets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_chat_sockets",
			Help:      "Number of open chatbot websocket connections.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Chat socket session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by reason.",
		}, []string{"reason"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_breaker_state",
			Help:      "Circuit breaker state per client (0 closed, 1 half-open, 2 open).",
		}, []string{"name"}),
		BadgesAwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_awarded_total",
			Help:      "Badges granted by the awarding rules.",
		}),
		EmbeddingBackfill: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_backfill_total",
			Help:      "Event embedding backfill results.",
		}, []string{"result"}),
		stages: newStageWindow(256),
	}
}

// ObserveChat records one handled chat message. Nil receivers are ignored.
func (m *Metrics) ObserveChat(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
	m.ChatLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe("total", float64(d.Milliseconds()))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveCapability(name, kind string) {
	if m == nil {
		return
	}
	m.CapabilityCalls.WithLabelValues(name, kind).Inc()
}

func (m *Metrics) ObserveOracleError(stage string) {
	if m == nil {
		return
	}
	m.OracleErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveSemanticSearch(path string) {
	if m == nil {
		return
	}
	m.SemanticSearches.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveBackfill(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EmbeddingBackfill.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) ObserveBadgeAwarded() {
	if m == nil {
		return
	}
	m.BadgesAwarded.Inc()
}

// ObserveHTTP counts one served request by route pattern.
func (m *Metrics) ObserveHTTP(route, method string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// ObserveWSMessage counts one websocket frame by direction and type.
func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetActiveChatSockets records the number of open chat sockets.
func (m *Metrics) SetActiveChatSockets(n int) {
	if m == nil {
		return
	}
	m.ActiveChatSockets.Set(float64(n))
}

// ObserveSessionEvent counts a chat socket lifecycle event.
func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

// ObserveWSWriteError counts a failed socket write.
func (m *Metrics) ObserveWSWriteError(reason string) {
	if m == nil {
		return
	}
	m.WSWriteErrors.WithLabelValues(reason).Inc()
}

// SetBreakerState records a circuit breaker transition (0 closed, 1
// half-open, 2 open).
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// SnapshotStages returns rolling latency percentiles per chat stage.
func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
