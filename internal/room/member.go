package room

import "errors"

var ErrSlowConsumer = errors.New("member outbox full")
var ErrMemberClosed = errors.New("member closed")

// Member is one connected client as seen by a room.
//
// Send is called from the room's goroutine and must not block on network I/O: queue the
// payload or fail. Close asks the member to flush what it has queued and hang up.
type Member interface {
	ID() string
	Send(payload []byte) error
	Close() error
}
