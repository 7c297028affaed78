package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/DoyleJ11/roomsync-backend/internal/room"
	"github.com/DoyleJ11/roomsync-backend/internal/types"
)

// Conn is the part of *websocket.Conn a session needs.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Session is one client connection. Everything sent to it goes through a bounded outbox
// drained by writeLoop, so rooms can hand it messages without touching the network.
type Session struct {
	id     string
	remote string
	conn   Conn

	out          chan []byte
	writeTimeout time.Duration

	mu      sync.Mutex    // orders Send against Close
	closed  bool          // guarded by mu
	done    chan struct{} // closed by Close
	flushed chan struct{} // closed when writeLoop has hung up
}

func newSession(conn Conn, remote string, outbox int, writeTimeout time.Duration) *Session {
	return &Session{
		id:           uuid.NewString(),
		remote:       remote,
		conn:         conn,
		out:          make(chan []byte, outbox),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		flushed:      make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Send queues payload without blocking. Whatever it accepts is written before a normal close.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return room.ErrMemberClosed
	}

	select {
	case s.out <- payload:
		return nil
	default:
		return room.ErrSlowConsumer
	}
}

// Close asks the writer to flush the outbox and close the connection. The reader notices
// the closed connection and ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *Session) sendError(msg string) {
	payload, err := types.Encode(types.NewError(msg))
	if err != nil {
		return
	}
	_ = s.Send(payload)
}

func (s *Session) writeLoop(ctx context.Context) {
	defer close(s.flushed)

	for {
		select {
		case p := <-s.out:
			if err := s.write(ctx, p); err != nil {
				// Further sends fail, so the room drops us on its next broadcast.
				_ = s.Close()
				_ = s.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-s.done:
			for {
				select {
				case p := <-s.out:
					if err := s.write(ctx, p); err != nil {
						_ = s.conn.Close(websocket.StatusInternalError, "write failed")
						return
					}
				default:
					_ = s.conn.Close(websocket.StatusNormalClosure, "bye")
					return
				}
			}
		}
	}
}

func (s *Session) write(ctx context.Context, p []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, p)
}

// wait closes the session and blocks until the writer is finished.
func (s *Session) wait() {
	_ = s.Close()
	<-s.flushed
}
