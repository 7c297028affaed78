package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PatchAccepted = "accepted"
	PatchRejected = "rejected"
	PatchConflict = "conflict"
)

var (
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomsync_rooms",
		Help: "Rooms currently held by the registry.",
	})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomsync_sessions",
		Help: "Open websocket sessions.",
	})

	Patches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomsync_patches_total",
		Help: "Patches by outcome.",
	}, []string{"result"})

	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_broadcast_drops_total",
		Help: "Members dropped because a broadcast could not be delivered to them.",
	})

	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomsync_messages_total",
		Help: "Client messages received by type.",
	}, []string{"type"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
