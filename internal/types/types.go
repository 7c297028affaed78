package types

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrBadJSON = errors.New("bad json")

const (
	TypeJoin             = "join"
	TypeRequestFullState = "request_full_state"
	TypePatch            = "patch"
	TypeDeleteRoom       = "delete_room"

	TypeFullState   = "full_state"
	TypeError       = "error"
	TypeRoomDeleted = "room_deleted"
)

// ClientMsg is one decoded client -> server message.
type ClientMsg interface{ isClientMsg() }

type Join struct {
	Room string
	Key  string
}

func (Join) isClientMsg() {}

type RequestFullState struct{}

func (RequestFullState) isClientMsg() {}

type Patch struct {
	BaseVersion int
	Body        json.RawMessage
}

func (Patch) isClientMsg() {}

type DeleteRoom struct{}

func (DeleteRoom) isClientMsg() {}

type Unknown struct{ Type string }

func (Unknown) isClientMsg() {}

// Parse decodes a text frame. Only malformed JSON (or JSON that isn't an object) is an error,
// a missing or unexpected "type" comes back as Unknown.
func Parse(data []byte) (ClientMsg, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrBadJSON
	}

	switch typ := stringField(fields, "type"); typ {
	case TypeJoin:
		return Join{Room: stringField(fields, "room"), Key: stringField(fields, "key")}, nil
	case TypeRequestFullState:
		return RequestFullState{}, nil
	case TypePatch:
		return Patch{BaseVersion: intField(fields, "baseVersion"), Body: fields["patch"]}, nil
	case TypeDeleteRoom:
		return DeleteRoom{}, nil
	default:
		return Unknown{Type: typ}, nil
	}
}

func stringField(fields map[string]json.RawMessage, name string) string {
	var s string
	if err := json.Unmarshal(fields[name], &s); err != nil {
		return ""
	}
	return s
}

// intField accepts integers, integral floats and numeric strings. Everything else is 0.
func intField(fields map[string]json.RawMessage, name string) int {
	raw, ok := fields[name]
	if !ok {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0
		}
		return int(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i
		}
	}
	return 0
}

// Server -> client

type FullState struct {
	Type       string          `json:"type"`
	Room       string          `json:"room"`
	Version    int             `json:"version"`
	State      json.RawMessage `json:"state"`
	ServerTime float64         `json:"serverTime"`
	Note       string          `json:"note,omitempty"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type RoomDeleted struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

func NewFullState(room string, version int, state json.RawMessage, now time.Time) FullState {
	return FullState{
		Type:       TypeFullState,
		Room:       room,
		Version:    version,
		State:      state,
		ServerTime: float64(now.UnixNano()) / 1e9,
	}
}

func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: msg}
}

func NewRoomDeleted(room string) RoomDeleted {
	return RoomDeleted{Type: TypeRoomDeleted, Room: room}
}

// Encode marshals a server message. The messages above always marshal, so a failure here
// means a state document that isn't valid JSON slipped through.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
