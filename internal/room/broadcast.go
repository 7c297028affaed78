package room

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/roomsync-backend/internal/metrics"
)

// Broadcast sends payload to every member except exclude (which may be nil) and returns
// the members whose send failed. One failure never stops delivery to the rest.
func Broadcast(members []Member, payload []byte, exclude Member) []Member {
	var failed []Member
	for _, m := range members {
		if exclude != nil && m == exclude {
			continue
		}
		if err := m.Send(payload); err != nil {
			failed = append(failed, m)
		}
	}
	return failed
}

// broadcast fans payload out to a snapshot of the room's members and drops the ones that
// couldn't take it. Failed sends are not retried; a dropped member is closed so its
// client reconnects instead of sitting on stale state.
func (r *Room) broadcast(payload []byte, exclude Member) {
	members := make([]Member, 0, len(r.clients))
	for m := range r.clients {
		members = append(members, m)
	}

	for _, m := range Broadcast(members, payload, exclude) {
		delete(r.clients, m)
		_ = m.Close()
		metrics.BroadcastDrops.Inc()
		r.log.Debug("broadcast.drop", zap.String("client", m.ID()))
	}
}
