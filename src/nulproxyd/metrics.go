package nulproxyd

import (
	"github.com/prometheus/client_golang/prometheus"

	"go.nulproxy.org/nulproxy/src/nulproxy"
)

type metrics struct {
	sessionsStarted prometheus.Counter
	sessionsActive  prometheus.Gauge
	messages        *prometheus.CounterVec
	bytes           *prometheus.CounterVec
	ticks           prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nulproxy_sessions_started_total",
			Help: "Sessions accepted since the daemon started.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nulproxy_sessions_active",
			Help: "Sessions currently live.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nulproxy_messages_total",
			Help: "Complete messages observed, by originating direction.",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nulproxy_bytes_total",
			Help: "Bytes moved through finished sessions, by side and flow.",
		}, []string{"direction", "flow"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nulproxy_ticks_total",
			Help: "Event loop ticks fired.",
		}),
	}
	reg.MustRegister(m.sessionsStarted, m.sessionsActive, m.messages, m.bytes, m.ticks)
	return m
}

func (m *metrics) tick(elapsedMS int64) {
	m.ticks.Inc()
}

// observe wraps inner so every session event also feeds the collectors.
func (m *metrics) observe(inner nulproxy.Observer) nulproxy.Observer {
	return &meteredObserver{metrics: m, inner: inner}
}

type meteredObserver struct {
	*metrics
	inner nulproxy.Observer
}

func (o *meteredObserver) OnLocalMessage(s *nulproxy.Session, msg string) {
	o.messages.WithLabelValues("local").Inc()
	o.inner.OnLocalMessage(s, msg)
}

func (o *meteredObserver) OnRemoteMessage(s *nulproxy.Session, msg string) {
	o.messages.WithLabelValues("remote").Inc()
	o.inner.OnRemoteMessage(s, msg)
}

func (o *meteredObserver) OnStateChange(s *nulproxy.Session, connected bool) {
	if connected {
		o.sessionsStarted.Inc()
		o.sessionsActive.Inc()
	} else {
		o.sessionsActive.Dec()
		st := s.Stats()
		o.bytes.WithLabelValues("local", "rx").Add(float64(st.LocalRx))
		o.bytes.WithLabelValues("local", "tx").Add(float64(st.LocalTx))
		o.bytes.WithLabelValues("remote", "rx").Add(float64(st.RemoteRx))
		o.bytes.WithLabelValues("remote", "tx").Add(float64(st.RemoteTx))
	}
	o.inner.OnStateChange(s, connected)
}
