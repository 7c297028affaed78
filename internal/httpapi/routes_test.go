package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/roomsync-backend/internal/app"
	"github.com/DoyleJ11/roomsync-backend/internal/audit"
	"github.com/DoyleJ11/roomsync-backend/internal/hub"
	"github.com/DoyleJ11/roomsync-backend/internal/ws"
)

type fixture struct {
	srv   *httptest.Server
	hub   *hub.Hub
	trail *audit.Memory
	key   string
}

func newFixture(t *testing.T) *fixture {
	return newKeyedFixture(t, "")
}

func newKeyedFixture(t *testing.T, roomKey string) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := app.Config{
		RoomKey:         roomKey,
		MaxMessageBytes: 2_000_000,
		WriteTimeout:    time.Second,
		OutboxSize:      16,
		CORSAllow:       []string{"*"},
	}
	h := hub.NewHub(ctx, nil)
	mem := audit.NewMemory(0)

	srv := httptest.NewServer(SetupRoutes(cfg, h, ws.NewHandler(h, cfg, nil, nil), mem, nil))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &fixture{srv: srv, hub: h, trail: mem, key: roomKey}
}

func (f *fixture) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	return f.getWithKey(t, path, f.key)
}

func (f *fixture) getWithKey(t *testing.T, path, key string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-Room-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

// joinRoom connects a websocket client to roomID and waits for its first snapshot.
func (f *fixture) joinRoom(t *testing.T, roomID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })

	require.NoError(t, wsjson.Write(ctx, c, map[string]string{"type": "join", "room": roomID, "key": f.key}))
	var first map[string]any
	require.NoError(t, wsjson.Read(ctx, c, &first))
	require.Equal(t, "full_state", first["type"])
	return c
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	status, _ := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.joinRoom(t, "kitchen")

	status, body := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "roomsync_sessions")
	assert.Contains(t, string(body), "roomsync_rooms")
}

func TestListRooms(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, "/api/rooms")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	f.joinRoom(t, "kitchen")
	f.joinRoom(t, "kitchen")
	f.joinRoom(t, "attic")

	status, body = f.get(t, "/api/rooms")
	require.Equal(t, http.StatusOK, status)

	var rooms []roomSummary
	require.NoError(t, json.Unmarshal(body, &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "attic", rooms[0].Room)
	assert.Equal(t, 1, rooms[0].Clients)
	assert.Equal(t, "kitchen", rooms[1].Room)
	assert.Equal(t, 2, rooms[1].Clients)
	assert.Equal(t, 1, rooms[1].Version)
}

func TestGetRoom(t *testing.T) {
	f := newFixture(t)
	f.joinRoom(t, "kitchen")

	status, body := f.get(t, "/api/rooms/kitchen")
	require.Equal(t, http.StatusOK, status)

	var msg struct {
		Type    string          `json:"type"`
		Room    string          `json:"room"`
		Version int             `json:"version"`
		State   json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "full_state", msg.Type)
	assert.Equal(t, "kitchen", msg.Room)
	assert.Equal(t, 1, msg.Version)
	assert.JSONEq(t, `{"people":[],"activePersonId":null,"ui":{"search":""}}`, string(msg.State))
}

func TestGetRoom_NotFoundDoesNotCreate(t *testing.T) {
	f := newFixture(t)

	status, _ := f.get(t, "/api/rooms/nowhere")
	assert.Equal(t, http.StatusNotFound, status)

	rooms, err := f.hub.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for v := 2; v <= 4; v++ {
		require.NoError(t, f.trail.Record(ctx, audit.Entry{Room: "kitchen", Version: v, Action: audit.ActionPatch}))
	}
	require.NoError(t, f.trail.Record(ctx, audit.Entry{Room: "attic", Version: 2, Action: audit.ActionPatch}))

	status, body := f.get(t, "/api/rooms/kitchen/history?limit=2")
	require.Equal(t, http.StatusOK, status)

	var entries []audit.Entry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 4, entries[0].Version)
	assert.Equal(t, 3, entries[1].Version)

	status, body = f.get(t, "/api/rooms/garage/history")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestHistory_BadLimit(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"abc", "0", "-3"} {
		status, _ := f.get(t, "/api/rooms/kitchen/history?limit="+q)
		assert.Equal(t, http.StatusBadRequest, status, "limit=%s", q)
	}
}

func TestRoomsAPI_RequiresRoomKey(t *testing.T) {
	f := newKeyedFixture(t, "letmein")
	c := f.joinRoom(t, "secret")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, map[string]any{
		"type":        "patch",
		"baseVersion": 1,
		"patch": map[string]any{"op": "set_state", "state": map[string]any{
			"people":         []any{map[string]any{"id": "p1", "name": "Alice"}},
			"activePersonId": "p1",
		}},
	}))
	var next map[string]any
	require.NoError(t, wsjson.Read(ctx, c, &next))
	require.EqualValues(t, 2, next["version"])

	for _, path := range []string{"/api/rooms", "/api/rooms/secret", "/api/rooms/secret/history"} {
		for _, key := range []string{"", "nope"} {
			status, body := f.getWithKey(t, path, key)
			assert.Equal(t, http.StatusUnauthorized, status, "%s key=%q", path, key)
			assert.NotContains(t, string(body), "secret", "%s key=%q", path, key)
			assert.NotContains(t, string(body), "Alice", "%s key=%q", path, key)
		}
	}

	status, body := f.getWithKey(t, "/api/rooms/secret", "letmein")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Alice")

	status, _ = f.getWithKey(t, "/api/rooms?key=letmein", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.getWithKey(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
}
