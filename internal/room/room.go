package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/roomsync-backend/internal/engine"
	"github.com/DoyleJ11/roomsync-backend/internal/metrics"
	"github.com/DoyleJ11/roomsync-backend/internal/types"
)

var ErrClosed = errors.New("room closed")
var ErrVersionConflict = errors.New("version mismatch")

const ResyncNote = "Version mismatch, resync"

type Msg interface{ isRoomMsg() }

type Join struct {
	Member Member
	Reply  chan error
}

func (Join) isRoomMsg() {}

type Leave struct{ Member Member }

func (Leave) isRoomMsg() {}

type RequestFullState struct {
	Member Member
	Reply  chan error
}

func (RequestFullState) isRoomMsg() {}

type ApplyPatch struct {
	Member      Member
	BaseVersion int
	Body        json.RawMessage
	Reply       chan PatchResult
}

func (ApplyPatch) isRoomMsg() {}

// Delete tells every member the room is gone and stops the room. The members are handed
// back so the caller can close their channels.
type Delete struct {
	Reply chan []Member
}

func (Delete) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type PatchResult struct {
	Version int
	Detail  string // what changed, see engine.Describe
	Err     error
}

type View struct {
	ID         string
	Version    int
	NumClients int
	State      json.RawMessage
	UpdatedAt  time.Time
}

type Room struct {
	id        string
	inbox     chan Msg
	state     json.RawMessage
	version   int
	updatedAt time.Time
	clients   map[Member]struct{}
	log       *zap.Logger
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, id string, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	r := &Room{
		id:        id,
		inbox:     make(chan Msg, 64),
		state:     engine.DefaultState(),
		version:   1,
		updatedAt: time.Now(),
		clients:   make(map[Member]struct{}),
		log:       log.With(zap.String("room", id)),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room has been deleted or shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Inbox is exposed so tests and the hub can talk to the room directly.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				// Current snapshot goes out before any later broadcast can.
				if err := r.sendFullState(msg.Member, ""); err != nil {
					msg.Reply <- fmt.Errorf("send initial state: %w", err)
					break
				}
				r.clients[msg.Member] = struct{}{}
				msg.Reply <- nil

			case Leave:
				delete(r.clients, msg.Member)

			case RequestFullState:
				msg.Reply <- r.sendFullState(msg.Member, "")

			case ApplyPatch:
				msg.Reply <- r.applyPatch(msg)

			case GetState:
				msg.Reply <- View{
					ID:         r.id,
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state,
					UpdatedAt:  r.updatedAt,
				}

			case Delete:
				r.broadcastMessage(types.NewRoomDeleted(r.id), nil)
				members := make([]Member, 0, len(r.clients))
				for m := range r.clients {
					members = append(members, m)
				}
				clear(r.clients)
				msg.Reply <- members
				r.cancel()
				return

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) applyPatch(msg ApplyPatch) PatchResult {
	if msg.BaseVersion != r.version {
		metrics.Patches.WithLabelValues(metrics.PatchConflict).Inc()
		_ = r.sendFullState(msg.Member, ResyncNote)
		return PatchResult{Version: r.version, Err: ErrVersionConflict}
	}

	next, err := engine.Validate(msg.Body)
	if err != nil {
		metrics.Patches.WithLabelValues(metrics.PatchRejected).Inc()
		return PatchResult{Version: r.version, Err: err}
	}

	detail := engine.Describe(r.state, next)
	r.state = next
	r.version++
	r.updatedAt = r.now()
	metrics.Patches.WithLabelValues(metrics.PatchAccepted).Inc()

	// The commit stands even if some members can't be reached.
	r.broadcastMessage(types.NewFullState(r.id, r.version, r.state, r.now()), nil)
	return PatchResult{Version: r.version, Detail: detail}
}

func (r *Room) sendFullState(m Member, note string) error {
	msg := types.NewFullState(r.id, r.version, r.state, r.now())
	msg.Note = note
	payload, err := types.Encode(msg)
	if err != nil {
		return err
	}
	return m.Send(payload)
}

func (r *Room) broadcastMessage(v any, exclude Member) {
	payload, err := types.Encode(v)
	if err != nil {
		r.log.Error("broadcast.encode", zap.Error(err))
		return
	}
	r.broadcast(payload, exclude)
}

// shutdown closes every member; their sessions notice the closed channel and exit.
func (r *Room) shutdown() {
	for m := range r.clients {
		_ = m.Close()
		delete(r.clients, m)
	}
	r.cancel()
}

func (r *Room) send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join adds m to the room and sends it the current state.
func (r *Room) Join(ctx context.Context, m Member) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, Join{Member: m, Reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return err
	}
	return res
}

// Shutdown stops the room and closes every member.
func (r *Room) Shutdown() {
	_ = r.send(context.Background(), Shutdown{})
}

// Leave is safe to call more than once and after the room is gone.
func (r *Room) Leave(m Member) {
	_ = r.send(context.Background(), Leave{Member: m})
}

func (r *Room) RequestFullState(ctx context.Context, m Member) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, RequestFullState{Member: m, Reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return err
	}
	return res
}

// Patch runs the version check and validation and, on success, installs the new state and
// broadcasts it. On a version conflict the sender has already been sent a resync snapshot.
func (r *Room) Patch(ctx context.Context, m Member, baseVersion int, body json.RawMessage) PatchResult {
	reply := make(chan PatchResult, 1)
	if err := r.send(ctx, ApplyPatch{Member: m, BaseVersion: baseVersion, Body: body, Reply: reply}); err != nil {
		return PatchResult{Err: err}
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return PatchResult{Err: err}
	}
	return res
}

func (r *Room) Delete(ctx context.Context) ([]Member, error) {
	reply := make(chan []Member, 1)
	if err := r.send(ctx, Delete{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, r, reply)
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r, reply)
}

// await waits for the room's answer. A request that was still queued when the room stopped
// never gets one, so a stopped room counts as ErrClosed unless the reply already landed.
func await[T any](ctx context.Context, r *Room, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
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
