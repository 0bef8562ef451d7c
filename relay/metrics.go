package relay

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type metrics struct {
	connections prometheus.Gauge
	events      *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drawchat_relay_connections",
			Help: "Open websocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drawchat_relay_events_total",
			Help: "Client events received, by event name.",
		}, []string{"event"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drawchat_relay_rejected_total",
			Help: "Client events refused, by event name.",
		}, []string{"event"}),
	}
	if reg == nil {
		return m
	}
	for _, c := range []prometheus.Collector{m.connections, m.events, m.rejected} {
		if err := reg.Register(c); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if !errors.As(err, &dup) {
				log.Warn().Err(err).Msg("[relay] register metric")
			}
		}
	}
	return m
}
