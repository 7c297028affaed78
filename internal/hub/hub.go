package hub

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/roomsync-backend/internal/metrics"
	"github.com/DoyleJ11/roomsync-backend/internal/room"
)

var ErrClosed = errors.New("hub closed")

const (
	DefaultRoomID = "default"
	MaxRoomIDLen  = 40
)

// NormalizeRoomID trims the id, caps it at MaxRoomIDLen characters and falls back to
// DefaultRoomID when nothing is left. Ids stay case-sensitive.
func NormalizeRoomID(raw string) string {
	id := strings.TrimSpace(raw)
	if runes := []rune(id); len(runes) > MaxRoomIDLen {
		id = string(runes[:MaxRoomIDLen])
	}
	if id == "" {
		return DefaultRoomID
	}
	return id
}

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the room for ID, creating it if needed. A room that has already been
// deleted is replaced by a fresh one.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room // nil when absent
}

// RemoveRoom drops ID from the registry. When Room is set, the entry is only removed if it
// still points at that room.
type RemoveRoom struct {
	ID   string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []*room.Room
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// Hub is the process-wide room registry. All map access happens on its own goroutine.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if rm := h.rooms[msg.ID]; rm != nil && !closed(rm) {
					msg.Reply <- rm
					break
				}
				rm := room.New(h.ctx, msg.ID, h.log)
				if _, replaced := h.rooms[msg.ID]; !replaced {
					metrics.Rooms.Inc()
				}
				h.rooms[msg.ID] = rm
				h.log.Debug("room.created", zap.String("room", msg.ID))
				msg.Reply <- rm

			case GetRoom:
				rm := h.rooms[msg.ID]
				if rm != nil && closed(rm) {
					rm = nil
				}
				msg.Reply <- rm

			case RemoveRoom:
				rm, ok := h.rooms[msg.ID]
				if !ok || (msg.Room != nil && rm != msg.Room) {
					break
				}
				delete(h.rooms, msg.ID)
				metrics.Rooms.Dec()
				h.log.Debug("room.removed", zap.String("room", msg.ID))

			case ListRooms:
				out := make([]*room.Room, 0, len(h.rooms))
				for _, rm := range h.rooms {
					if !closed(rm) {
						out = append(out, rm)
					}
				}
				sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, rm := range h.rooms {
		rm.Shutdown()
		delete(h.rooms, id)
		metrics.Rooms.Dec()
	}
	h.cancel()
}

func closed(rm *room.Room) bool {
	select {
	case <-rm.Done():
		return true
	default:
		return false
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Resolve normalizes rawID and returns its room, creating it with the default state at
// version 1 on first reference.
func (h *Hub) Resolve(ctx context.Context, rawID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, EnsureRoom{ID: NormalizeRoomID(rawID), Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Get returns the room for rawID without creating it.
func (h *Hub) Get(ctx context.Context, rawID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{ID: NormalizeRoomID(rawID), Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Delete removes the room registered under rawID. It is a no-op when the room is absent.
func (h *Hub) Delete(ctx context.Context, rawID string) error {
	return h.send(ctx, RemoveRoom{ID: NormalizeRoomID(rawID)})
}

// Remove is Delete guarded by identity: a newer room registered under the same id is kept.
func (h *Hub) Remove(ctx context.Context, rm *room.Room) error {
	return h.send(ctx, RemoveRoom{ID: rm.ID(), Room: rm})
}

func (h *Hub) List(ctx context.Context) ([]*room.Room, error) {
	reply := make(chan []*room.Room, 1)
	if err := h.send(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Shutdown stops the hub and every room in it.
func (h *Hub) Shutdown() {
	_ = h.send(context.Background(), ShutdownHub{})
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }
