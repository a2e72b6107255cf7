package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the voice client. Each
// instance owns its registry so several can coexist in one process.
//
// All helper methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	SynthesisRequests *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	CacheEvictions    prometheus.Counter
	PlaybackStates    *prometheus.CounterVec
	CaptureOutcomes   *prometheus.CounterVec
	VoiceErrors       *prometheus.CounterVec
	ChatLatency       prometheus.Histogram
	SynthesisLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open voice sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		SynthesisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Speech synthesis requests by outcome.",
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_cache_lookups_total",
			Help:      "Audio cache lookups by result.",
		}, []string{"result"}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_cache_evictions_total",
			Help:      "Clips evicted from the audio cache for capacity.",
		}),
		PlaybackStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_transitions_total",
			Help:      "Playback state transitions by target state.",
		}, []string{"state"}),
		CaptureOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_outcomes_total",
			Help:      "Speech capture attempts by outcome.",
		}, []string{"outcome"}),
		VoiceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_errors_total",
			Help:      "Voice pipeline errors by kind.",
		}, []string{"kind"}),
		ChatLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_ms",
			Help:      "Backend /chat round trip in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		SynthesisLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_latency_ms",
			Help:      "Speech synthesis round trip in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000},
		}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionEvents.WithLabelValues("opened").Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionEvents.WithLabelValues(reason).Inc()
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

func (m *Metrics) Synthesis(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisRequests.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.SynthesisLatency.Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheEvicted() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

func (m *Metrics) PlaybackState(state string) {
	if m == nil {
		return
	}
	m.PlaybackStates.WithLabelValues(state).Inc()
}

func (m *Metrics) CaptureOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CaptureOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VoiceError(kind string) {
	if m == nil {
		return
	}
	m.VoiceErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveChatLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ChatLatency.Observe(float64(d.Milliseconds()))
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
