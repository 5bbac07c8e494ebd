// Package metric instruments the telemetry link with prometheus counters.
// A nil *Metrics is valid and records nothing.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telepathy"

// Metrics holds every counter and gauge the client exports.
type Metrics struct {
	BytesReceived     prometheus.Counter
	FramesDecoded     *prometheus.CounterVec
	FramesRejected    prometheus.Counter
	CandidatesEvicted prometheus.Counter
	CandidatesOpen    prometheus.Gauge
	ConnectAttempts   *prometheus.CounterVec
	Disconnects       prometheus.Counter
	KeepAliveFailures prometheus.Counter
	ListenerPanics    *prometheus.CounterVec
	Connected         prometheus.Gauge
}

// New creates the metric set without registering it.
func New() *Metrics {
	return &Metrics{
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "bytes_received_total",
			Help:      "Bytes read from the peer, keep-alive bytes included",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "decoded_total",
			Help:      "Frames that validated and decoded into a message",
		}, []string{"type"}),
		FramesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "rejected_total",
			Help:      "Frames that validated but failed to decode",
		}),
		CandidatesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "candidates_evicted_total",
			Help:      "Candidate frames dropped by the zero-byte ceiling",
		}),
		CandidatesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "candidates_open",
			Help:      "Candidate frames currently buffered",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by result",
		}, []string{"result"}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "disconnects_total",
			Help:      "Transitions from connected to disconnected",
		}),
		KeepAliveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "keepalive_failures_total",
			Help:      "Keep-alive writes that failed",
		}),
		ListenerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listeners",
			Name:      "panics_total",
			Help:      "Listener invocations that panicked",
		}, []string{"event"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "connected",
			Help:      "1 while the link is connected",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.BytesReceived, m.FramesDecoded, m.FramesRejected, m.CandidatesEvicted,
		m.CandidatesOpen, m.ConnectAttempts, m.Disconnects, m.KeepAliveFailures,
		m.ListenerPanics, m.Connected,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding m plus the Go runtime and process
// collectors.
func NewRegistry(m *Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, nil
}

// Handler serves reg in the prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) AddBytes(n int) {
	if m == nil {
		return
	}
	m.BytesReceived.Add(float64(n))
}

func (m *Metrics) FrameDecoded(typ string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(typ).Inc()
}

func (m *Metrics) FrameRejected() {
	if m == nil {
		return
	}
	m.FramesRejected.Inc()
}

func (m *Metrics) CandidateEvicted() {
	if m == nil {
		return
	}
	m.CandidatesEvicted.Inc()
}

func (m *Metrics) SetCandidates(n int) {
	if m == nil {
		return
	}
	m.CandidatesOpen.Set(float64(n))
}

func (m *Metrics) ConnectAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.Disconnects.Inc()
}

func (m *Metrics) KeepAliveFailed() {
	if m == nil {
		return
	}
	m.KeepAliveFailures.Inc()
}

func (m *Metrics) ListenerPanicked(event string) {
	if m == nil {
		return
	}
	m.ListenerPanics.WithLabelValues(event).Inc()
}
