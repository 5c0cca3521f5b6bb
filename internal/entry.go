// Package internal wires the questline runtime into the HTTP server.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/questline/internal/api"
	"github.com/starford/questline/internal/sse"
	"github.com/starford/questline/internal/watch"
)

const shutdownTimeout = 10 * time.Second

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run serves the plugin API until ctx is done or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := NewLogger(app.logOut, cfg.App.LogLevel)
	slog.SetDefault(logger)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("document_path", cfg.Document.Path),
		slog.String("export_dir", cfg.Export.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The broker is the session outbox: every plugin message lands on
	// /api/events and /api/ws.
	broker := sse.NewBroker(cfg.Scan.ProgressThrottle)
	defer broker.Close()

	rt, err := NewRuntime(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Archive.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	srv := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: newRouter(cfg, rt, broker),
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return rt.Inbox.Run(gCtx)
	})

	if cfg.Document.Watch {
		g.Go(func() error {
			if err := watch.Watch(gCtx, rt.Loader, logger, watch.DefaultDebounce, rt.Session.Refresh); err != nil {
				logger.Warn("document watcher unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdown(gCtx, logger)
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}

// newRouter mounts the health checks and the authenticated API.
func newRouter(cfg *Config, rt *Runtime, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, map[string]any{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{
			"status":      "ok",
			"document":    rt.Loader.Path(),
			"subscribers": broker.ClientCount(),
		}
		if last := rt.Session.LastScan(); last != nil {
			body["questlineId"] = last.QuestlineID
		}
		writeHealth(w, body)
	})

	r.Mount("/api", api.NewRouter(api.Deps{
		Session:     rt.Session,
		Inbox:       rt.Inbox,
		Archive:     rt.Archive,
		Broker:      broker,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	}))
	return r
}

func writeHealth(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
