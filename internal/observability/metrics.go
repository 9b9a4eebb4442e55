package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	ProviderRequests  *prometheus.CounterVec
	Fallbacks         *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	StoryLogParseErrs prometheus.Counter
	Directives        prometheus.Counter
	AdventureSaves    *prometheus.CounterVec

	window *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active adventure sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Narrator provider calls by provider and outcome class.",
		}, []string{"provider", "outcome"}),
		Fallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Fallback hops to the secondary provider by primary failure class.",
		}, []string{"class"}),
		GenerationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Latency of a narrator provider call.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		}, []string{"provider"}),
		StoryLogParseErrs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "story_log_parse_errors_total",
			Help:      "Structured story log blocks that failed to decode.",
		}),
		Directives: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roll_directives_total",
			Help:      "Dice roll directives surfaced to players.",
		}),
		AdventureSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adventure_saves_total",
			Help:      "Background adventure saves by outcome.",
		}, []string{"outcome"}),
		window: newLatencyWindow(256),
	}
}

// ObserveGeneration records one provider call.
func (m *Metrics) ObserveGeneration(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	m.GenerationLatency.WithLabelValues(provider).Observe(d.Seconds())
	m.window.Observe("generation_"+provider, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveFallback(class string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(class).Inc()
	m.window.ObserveIndicator("fallback_" + class)
}

func (m *Metrics) ObserveTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.window.Observe("turn_total", float64(d.Milliseconds()))
}

func (m *Metrics) ObserveParseError() {
	if m == nil {
		return
	}
	m.StoryLogParseErrs.Inc()
	m.window.ObserveIndicator("story_log_parse_error")
}

func (m *Metrics) ObserveDirective() {
	if m == nil {
		return
	}
	m.Directives.Inc()
	m.window.ObserveIndicator("roll_directive")
}

func (m *Metrics) ObserveSave(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.AdventureSaves.WithLabelValues(outcome).Inc()
}

// SetActiveSessions updates the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SnapshotLatency returns rolling latency stats for the perf endpoint.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.window.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
