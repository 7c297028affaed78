package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/roomsync-backend/internal/app"
	"github.com/DoyleJ11/roomsync-backend/internal/audit"
	"github.com/DoyleJ11/roomsync-backend/internal/httpapi"
	"github.com/DoyleJ11/roomsync-backend/internal/hub"
	"github.com/DoyleJ11/roomsync-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// auditSink is where accepted patches end up: postgres when configured, a bounded in-memory
// ring otherwise.
type auditSink interface {
	audit.Recorder
	audit.Reader
}

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger, err := app.NewLogger(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server.exit", zap.Error(err))
	}
}

func run(cfg app.Config, logger *zap.Logger) (err error) {
	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sink auditSink = audit.NewMemory(cfg.AuditMemoryLimit)
	if cfg.DatabaseURL != "" {
		store, openErr := audit.OpenStore(cfg.DatabaseURL)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, store.Close()) }()
		sink = store
		logger.Info("audit.postgres")
	}
	trail := audit.NewLog(sink, cfg.AuditQueue, logger)

	h := hub.NewHub(ctx, logger)

	router := httpapi.SetupRoutes(cfg, h, ws.NewHandler(h, cfg, logger, trail), sink, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server.listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return trail.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server.shutdown.start")

		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()

		// Websocket connections are hijacked, so Shutdown does not wait for them. Closing the
		// rooms closes their members, which ends those sessions.
		err := srv.Shutdown(shutdownCtx)
		h.Shutdown()

		logger.Info("server.shutdown.complete")
		return err
	})

	return g.Wait()
}
