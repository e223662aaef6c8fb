// Package metrics exposes relay counters and gauges to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duo"

// Metrics owns a private registry so independent relays (and tests) never
// share collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	relayed     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	swept       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Signaling connections currently open.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Messages delivered to a peer, by message type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Inbound messages rejected or dropped, by reason.",
		}, []string{"reason"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Idle sessions removed by the sweeper.",
		}),
	}
	m.registry.MustRegister(m.connections, m.relayed, m.rejected, m.swept)
	return m
}

// ObserveSessions registers a gauge that reads the live session count on
// every scrape.
func (m *Metrics) ObserveSessions(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently held by the registry.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Relayed(msgType string) {
	if m != nil {
		m.relayed.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Swept(n int) {
	if m != nil && n > 0 {
		m.swept.Add(float64(n))
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
