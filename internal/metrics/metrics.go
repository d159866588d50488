// Package metrics exposes Prometheus collectors for the streaming service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orion_stream"

// Metrics holds the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge

	UnitsTotal       *prometheus.CounterVec
	SynthErrors      *prometheus.CounterVec
	SynthLatency     prometheus.Histogram
	SynthCacheHits   prometheus.Counter
	AudioBytesSent   prometheus.Counter
	AudioSecondsSent prometheus.Counter

	ProtocolViolations prometheus.Counter
	Resets             prometheus.Counter
	StaleDiscards      prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of streaming sessions opened",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions",
		}),
		UnitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Text units extracted for synthesis, by trigger",
		}, []string{"trigger"}),
		SynthErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_errors_total",
			Help:      "Failed synthesis units, by kind",
		}, []string{"kind"}),
		SynthLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_latency_seconds",
			Help:      "Time to synthesize one unit",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		SynthCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_cache_hits_total",
			Help:      "Units served from the synthesis cache",
		}),
		AudioBytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Raw PCM bytes emitted before Base64 encoding",
		}),
		AudioSecondsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_seconds_sent_total",
			Help:      "Seconds of audio emitted",
		}),
		ProtocolViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Malformed inbound messages",
		}),
		Resets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Session resets requested by clients",
		}),
		StaleDiscards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_discards_total",
			Help:      "Synthesis results dropped because a reset invalidated their generation",
		}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) UnitExtracted(trigger string) {
	if m == nil {
		return
	}
	m.UnitsTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Synthesized(elapsed time.Duration, pcmBytes int, audioMs float64, cached bool) {
	if m == nil {
		return
	}
	m.SynthLatency.Observe(elapsed.Seconds())
	m.AudioBytesSent.Add(float64(pcmBytes))
	m.AudioSecondsSent.Add(audioMs / 1000)
	if cached {
		m.SynthCacheHits.Inc()
	}
}

func (m *Metrics) SynthesisFailed(kind string) {
	if m == nil {
		return
	}
	m.SynthErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProtocolViolation() {
	if m == nil {
		return
	}
	m.ProtocolViolations.Inc()
}

func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.Resets.Inc()
}

func (m *Metrics) StaleDiscard() {
	if m == nil {
		return
	}
	m.StaleDiscards.Inc()
}
