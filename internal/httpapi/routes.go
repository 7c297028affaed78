package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/roomsync-backend/internal/app"
	"github.com/DoyleJ11/roomsync-backend/internal/audit"
	"github.com/DoyleJ11/roomsync-backend/internal/hub"
	"github.com/DoyleJ11/roomsync-backend/internal/metrics"
)

func SetupRoutes(cfg app.Config, h *hub.Hub, ws http.Handler, trail audit.Reader, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	rooms := &RoomsAPI{hub: h, trail: trail, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Method(http.MethodGet, "/ws", ws)

	r.Route("/api/rooms", func(r chi.Router) {
		r.Use(RequireRoomKey(cfg.RoomKey))
		r.Get("/", rooms.List)
		r.Get("/{id}", rooms.Get)
		r.Get("/{id}/history", rooms.History)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllow,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}
