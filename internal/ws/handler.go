package ws

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/roomsync-backend/internal/app"
	"github.com/DoyleJ11/roomsync-backend/internal/audit"
	"github.com/DoyleJ11/roomsync-backend/internal/engine"
	"github.com/DoyleJ11/roomsync-backend/internal/hub"
	"github.com/DoyleJ11/roomsync-backend/internal/metrics"
	"github.com/DoyleJ11/roomsync-backend/internal/room"
	"github.com/DoyleJ11/roomsync-backend/internal/types"
)

const (
	errJoinNotText   = "First message must be join (text)"
	errJoinNotJoin   = "First message must be join"
	errBadJSON       = "Bad JSON"
	errBadRoomKey    = "Bad room key"
	errUnknownType   = "Unknown message type"
	errPatchRejected = "Patch rejected: "
)

// first frames that were not a join
const labelJoinRejected = "join_rejected"

// Wire text for each validation failure.
var rejections = map[error]string{
	engine.ErrUnsupportedOperation: "Unsupported patch op",
	engine.ErrInvalidState:         "state must be an object",
	engine.ErrInvalidPeople:        "Invalid people",
	engine.ErrMissingActivePerson:  "Missing activePersonId",
	engine.ErrDuplicateNames:       "Duplicate person names are not allowed",
}

func rejection(err error) string {
	for sentinel, text := range rejections {
		if errors.Is(err, sentinel) {
			return text
		}
	}
	return err.Error()
}

type Handler struct {
	hub   *hub.Hub
	cfg   app.Config
	log   *zap.Logger
	audit *audit.Log
}

// NewHandler serves the room protocol over websockets. trail may be nil.
func NewHandler(h *hub.Hub, cfg app.Config, log *zap.Logger, trail *audit.Log) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 64
	}
	return &Handler{hub: h, cfg: cfg, log: log, audit: trail}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  originPatterns(h.cfg.CORSAllow),
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.log.Debug("ws.accept", zap.Error(err))
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	h.Serve(r.Context(), conn, r.RemoteAddr)
}

// Serve runs one session to completion: join handshake, then the message loop.
func (h *Handler) Serve(ctx context.Context, conn Conn, remote string) {
	s := newSession(conn, remote, h.cfg.OutboxSize, h.cfg.WriteTimeout)
	metrics.Sessions.Inc()
	defer metrics.Sessions.Dec()

	go s.writeLoop(ctx)
	defer s.wait()

	rm := h.join(ctx, s)
	if rm == nil {
		return
	}
	defer rm.Leave(s)

	h.run(ctx, s, rm)
}

func (h *Handler) join(ctx context.Context, s *Session) *room.Room {
	log := h.log.With(zap.String("client", s.remote), zap.String("session", s.id))

	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil
	}
	if typ != websocket.MessageText {
		metrics.Messages.WithLabelValues(labelJoinRejected).Inc()
		log.Warn("join", zap.String("status", "rejected"), zap.String("reason", "non_text_first"))
		s.sendError(errJoinNotText)
		return nil
	}

	msg, err := types.Parse(data)
	if err != nil {
		metrics.Messages.WithLabelValues(labelJoinRejected).Inc()
		log.Warn("join", zap.String("status", "rejected"), zap.String("reason", "bad_json"))
		s.sendError(errBadJSON)
		return nil
	}

	join, ok := msg.(types.Join)
	if !ok {
		metrics.Messages.WithLabelValues(labelJoinRejected).Inc()
		log.Warn("join", zap.String("status", "rejected"), zap.String("reason", "not_join"))
		s.sendError(errJoinNotJoin)
		return nil
	}

	metrics.Messages.WithLabelValues(types.TypeJoin).Inc()

	roomID := hub.NormalizeRoomID(join.Room)
	log = log.With(zap.String("room", roomID))

	if h.cfg.RoomKey != "" && subtle.ConstantTimeCompare([]byte(join.Key), []byte(h.cfg.RoomKey)) != 1 {
		log.Warn("join", zap.String("status", "rejected"), zap.String("reason", "bad_key"))
		s.sendError(errBadRoomKey)
		return nil
	}

	rm, err := h.enter(ctx, roomID, s)
	if err != nil {
		log.Warn("join", zap.String("status", "rejected"), zap.Error(err))
		return nil
	}

	log.Info("join", zap.String("status", "ok"))
	return rm
}

// enter resolves the room and joins it. A room deleted between resolve and join is
// replaced by the hub, so trying again lands in the fresh one.
func (h *Handler) enter(ctx context.Context, roomID string, s *Session) (*room.Room, error) {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		var rm *room.Room
		rm, err = h.hub.Resolve(ctx, roomID)
		if err != nil {
			return nil, err
		}
		err = rm.Join(ctx, s)
		if errors.Is(err, room.ErrClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rm, nil
	}
	return nil, err
}

func (h *Handler) run(ctx context.Context, s *Session, rm *room.Room) {
	log := h.log.With(zap.String("client", s.remote), zap.String("session", s.id), zap.String("room", rm.ID()))

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		if typ != websocket.MessageText {
			metrics.Messages.WithLabelValues("binary").Inc()
			log.Warn("message", zap.String("status", "rejected"), zap.String("reason", "non_text"))
			s.sendError(errUnknownType)
			continue
		}

		msg, err := types.Parse(data)
		if err != nil {
			metrics.Messages.WithLabelValues("bad_json").Inc()
			log.Warn("message", zap.String("status", "rejected"), zap.String("reason", "bad_json"))
			s.sendError(errBadJSON)
			continue
		}

		switch m := msg.(type) {
		case types.RequestFullState:
			metrics.Messages.WithLabelValues(types.TypeRequestFullState).Inc()
			if err := rm.RequestFullState(ctx, s); err != nil {
				log.Warn("request_full_state", zap.String("status", "rejected"), zap.Error(err))
				return
			}
			log.Info("request_full_state", zap.String("status", "ok"))

		case types.Patch:
			metrics.Messages.WithLabelValues(types.TypePatch).Inc()
			if !h.patch(ctx, log, s, rm, m) {
				return
			}

		case types.DeleteRoom:
			metrics.Messages.WithLabelValues(types.TypeDeleteRoom).Inc()
			h.deleteRoom(ctx, log, s, rm)
			return

		default: // types.Unknown, or a second join
			metrics.Messages.WithLabelValues("unknown").Inc()
			log.Warn("message", zap.String("status", "rejected"), zap.String("reason", "unknown_type"))
			s.sendError(errUnknownType)
		}
	}
}

// patch reports whether the session should keep going.
func (h *Handler) patch(ctx context.Context, log *zap.Logger, s *Session, rm *room.Room, m types.Patch) bool {
	res := rm.Patch(ctx, s, m.BaseVersion, m.Body)

	switch {
	case res.Err == nil:
		log.Info("patch", zap.String("status", "ok"), zap.Int("version", res.Version), zap.String("detail", res.Detail))
		h.audit.Record(audit.Entry{
			Room:    rm.ID(),
			Version: res.Version,
			Client:  s.id,
			Action:  audit.ActionPatch,
			Detail:  res.Detail,
		})

	case errors.Is(res.Err, room.ErrVersionConflict):
		// the room already sent the resync snapshot
		log.Warn("patch", zap.String("status", "rejected"), zap.String("reason", "version_mismatch"),
			zap.Int("baseVersion", m.BaseVersion), zap.Int("version", res.Version))

	case errors.Is(res.Err, room.ErrClosed), ctx.Err() != nil:
		return false

	default:
		reason := rejection(res.Err)
		log.Warn("patch", zap.String("status", "rejected"), zap.String("reason", reason))
		s.sendError(errPatchRejected + reason)
	}
	return true
}

// deleteRoom notifies every member, closes their channels and then unregisters the room.
// The other sessions end on their own once their connection closes.
func (h *Handler) deleteRoom(ctx context.Context, log *zap.Logger, s *Session, rm *room.Room) {
	members, err := rm.Delete(ctx)
	if err != nil {
		log.Warn("delete_room", zap.String("status", "rejected"), zap.Error(err))
		return
	}

	for _, m := range members {
		_ = m.Close()
	}
	_ = s.Close()

	if err := h.hub.Remove(context.WithoutCancel(ctx), rm); err != nil {
		log.Warn("delete_room", zap.String("status", "rejected"), zap.Error(err))
		return
	}

	log.Info("delete_room", zap.String("status", "ok"), zap.Int("members", len(members)))
	h.audit.Record(audit.Entry{Room: rm.ID(), Client: s.id, Action: audit.ActionDeleteRoom})
}

// originPatterns turns CORS origins into the host patterns websocket.Accept expects.
func originPatterns(allow []string) []string {
	out := make([]string, 0, len(allow))
	for _, o := range allow {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, o)
	}
	return out
}
