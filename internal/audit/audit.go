// Package audit keeps an append-only trail of accepted patches and room deletions.
// The trail is for humans and tooling; room state is never rebuilt from it.
package audit

import (
	"context"
	"time"
)

type Action string

const (
	ActionPatch      Action = "patch"
	ActionDeleteRoom Action = "delete_room"
)

type Entry struct {
	Room    string    `json:"room"`
	Version int       `json:"version"`
	Client  string    `json:"client"`
	Action  Action    `json:"action"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Reader interface {
	// History returns up to limit entries for room, newest first.
	History(ctx context.Context, room string, limit int) ([]Entry, error)
}
