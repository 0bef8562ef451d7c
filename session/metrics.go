package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Drop reasons reported by drawchat_frames_dropped_total.
const (
	DropMalformed = "malformed"
	DropClosed    = "closed"
)

type metrics struct {
	frames    *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	acks      prometheus.Counter
	replayed  prometheus.Counter
	connected prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drawchat_frames_total",
			Help: "Inbound events handled, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drawchat_frames_dropped_total",
			Help: "Inbound events discarded, by reason.",
		}, []string{"reason"}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drawchat_read_acks_total",
			Help: "read:ack events emitted.",
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drawchat_strokes_replayed_total",
			Help: "Stored strokes drawn by canvas joins.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drawchat_connected",
			Help: "1 while the chat connection is up.",
		}),
	}
	if reg == nil {
		return m
	}
	for _, c := range []prometheus.Collector{m.frames, m.dropped, m.acks, m.replayed, m.connected} {
		if err := reg.Register(c); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if errors.As(err, &dup) {
				log.Debug().Msg("[session] metric already registered, keeping private copy")
				continue
			}
			log.Warn().Err(err).Msg("[session] register metric")
		}
	}
	return m
}
