package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/api"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/boltstore"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/config"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/db"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/filestore"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/logging"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/router"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/ws"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	st := store.New(backend, logger)
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(logger, ws.Limits{
		MessagesPerSecond: cfg.MessagesPerSecond,
		Burst:             cfg.MessageBurst,
	})
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	events := router.New(st, hub, logger)
	apiHandler := api.New(hub, st, logger)

	r := mux.NewRouter()
	r.Use(api.AccessLog(logger))
	r.Path("/ws").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, events, w, req)
	})
	apiHandler.Register(r)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.CORS(r),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("whiteboard server starting",
			zap.String("addr", cfg.Addr),
			zap.String("backend", st.Backend()),
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	stop()
	<-hubDone
	return nil
}

// openBackend picks the storage engine once at startup. A database
// backend that fails to open falls back to the file backend.
func openBackend(cfg config.Config, logger *zap.Logger) (store.Backend, error) {
	switch {
	case cfg.DBPath != "":
		database, err := db.New(cfg.DBPath)
		if err == nil {
			return database, nil
		}
		logger.Warn("sqlite backend unavailable, using files", zap.String("path", cfg.DBPath), zap.Error(err))

	case cfg.BoltPath != "":
		if dir := filepath.Dir(cfg.BoltPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Warn("bolt backend unavailable, using files", zap.String("path", cfg.BoltPath), zap.Error(err))
				break
			}
		}
		bolt, err := boltstore.Open(cfg.BoltPath)
		if err == nil {
			return bolt, nil
		}
		logger.Warn("bolt backend unavailable, using files", zap.String("path", cfg.BoltPath), zap.Error(err))
	}

	files, err := filestore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open file backend: %w", err)
	}
	return files, nil
}
