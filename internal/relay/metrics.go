package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	rooms    prometheus.Gauge
	peers    prometheus.Gauge
	frames   prometheus.Counter
	rejected *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "peer_room",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Number of rooms with at least one participant.",
		}),
		peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "peer_room",
			Subsystem: "relay",
			Name:      "peers",
			Help:      "Number of connected participants.",
		}),
		frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "peer_room",
			Subsystem: "relay",
			Name:      "frames_forwarded_total",
			Help:      "Frames delivered to another participant.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peer_room",
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Connections turned away, by reason.",
		}, []string{"reason"}),
	}
}
