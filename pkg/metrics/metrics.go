// Package metrics exposes player and synthesis counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session outcomes.
const (
	OutcomeReady     = "ready"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
	OutcomeEmpty     = "empty"
)

// Metrics holds the collectors of one player instance.
type Metrics struct {
	gatherer prometheus.Gatherer

	sessions      *prometheus.CounterVec
	transports    *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	firstAudio    *prometheus.HistogramVec
	bytesReceived prometheus.Counter
	liveHandles   prometheus.Gauge
	checks        *prometheus.CounterVec
	checkSeconds  *prometheus.GaugeVec
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,

		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readaloud_sessions_total",
				Help: "Synthesis sessions by language and outcome",
			},
			[]string{"language", "outcome"},
		),

		transports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readaloud_transport_total",
				Help: "Responses by delivery path",
			},
			[]string{"mode"}, // streaming, buffered
		),

		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readaloud_endpoint_attempts_total",
				Help: "Synthesis endpoint attempts by endpoint and result",
			},
			[]string{"endpoint", "result"}, // result: success, failure
		),

		firstAudio: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readaloud_first_audio_seconds",
				Help:    "Time from request to a playable handle",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"mode"},
		),

		bytesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "readaloud_audio_bytes_total",
				Help: "Audio bytes received from the synthesis service",
			},
		),

		liveHandles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "readaloud_live_handles",
				Help: "Playable handles currently held by the cache",
			},
		),

		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readaloud_startup_checks_total",
				Help: "Start-up checks by name and result",
			},
			[]string{"check", "result"}, // result: pass, fail
		),

		checkSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "readaloud_startup_check_seconds",
				Help: "Duration of the latest run of each start-up check",
			},
			[]string{"check"},
		),
	}

	reg.MustRegister(
		m.sessions,
		m.transports,
		m.attempts,
		m.firstAudio,
		m.bytesReceived,
		m.liveHandles,
		m.checks,
		m.checkSeconds,
	)
	return m
}

// SessionFinished counts one finished session.
func (m *Metrics) SessionFinished(lang, outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(lang, outcome).Inc()
}

// TransportChosen counts a negotiated delivery path.
func (m *Metrics) TransportChosen(mode string) {
	if m == nil {
		return
	}
	m.transports.WithLabelValues(mode).Inc()
}

// EndpointAttempt counts one call to a candidate endpoint.
func (m *Metrics) EndpointAttempt(endpoint string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.attempts.WithLabelValues(endpoint, result).Inc()
}

// FirstAudio records the latency until audio became playable.
func (m *Metrics) FirstAudio(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.firstAudio.WithLabelValues(mode).Observe(d.Seconds())
}

// BytesReceived adds n received audio bytes.
func (m *Metrics) BytesReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// SetLiveHandles reports the number of cached handles.
func (m *Metrics) SetLiveHandles(n int) {
	if m == nil {
		return
	}
	m.liveHandles.Set(float64(n))
}

// CheckFinished records one start-up check.
func (m *Metrics) CheckFinished(name string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "fail"
	if ok {
		result = "pass"
	}
	m.checks.WithLabelValues(name, result).Inc()
	m.checkSeconds.WithLabelValues(name).Set(d.Seconds())
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
