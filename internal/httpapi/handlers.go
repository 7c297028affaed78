package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/roomsync-backend/internal/audit"
	"github.com/DoyleJ11/roomsync-backend/internal/hub"
	"github.com/DoyleJ11/roomsync-backend/internal/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// RoomsAPI is the read-only view of the registry. Nothing here creates or changes a room.
type RoomsAPI struct {
	hub   *hub.Hub
	trail audit.Reader // may be nil
	log   *zap.Logger
}

type roomSummary struct {
	Room      string    `json:"room"`
	Version   int       `json:"version"`
	Clients   int       `json:"clients"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a *RoomsAPI) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.hub.List(r.Context())
	if err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := make([]roomSummary, 0, len(rooms))
	for _, rm := range rooms {
		v, err := rm.View(r.Context())
		if err != nil {
			continue // deleted while we were looking
		}
		resp = append(resp, roomSummary{
			Room:      v.ID,
			Version:   v.Version,
			Clients:   v.NumClients,
			UpdatedAt: v.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get answers with the same full_state message a joining client would receive.
func (a *RoomsAPI) Get(w http.ResponseWriter, r *http.Request) {
	rm, err := a.hub.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if rm == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	v, err := rm.View(r.Context())
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, types.NewFullState(v.ID, v.Version, v.State, time.Now()))
}

func (a *RoomsAPI) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries := []audit.Entry{}
	if a.trail != nil {
		var err error
		entries, err = a.trail.History(r.Context(), hub.NormalizeRoomID(chi.URLParam(r, "id")), limit)
		if err != nil {
			a.log.Error("history", zap.Error(err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
