// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/canvasarchive/internal/api"
	"github.com/starford/canvasarchive/internal/archiveservice"
	"github.com/starford/canvasarchive/internal/index"
	"github.com/starford/canvasarchive/internal/models"
	"github.com/starford/canvasarchive/internal/sse"
	"github.com/starford/canvasarchive/internal/storage"
	"github.com/starford/canvasarchive/internal/watcher"
)

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// Components are the long-lived pieces shared by the server and the one-shot commands.
type Components struct {
	Store   *storage.FS
	DB      *index.DB
	Service *archiveservice.Service
}

// Open prepares the vault, the run index and the archive service.
func Open(cfg *Config, logger *slog.Logger) (*Components, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svc := archiveservice.NewService(store, db, archiveservice.Options{
		Selector: models.Selector{Type: models.KindText, Color: cfg.Archive.Color},
		Suffix:   cfg.Archive.Suffix,
	}, logger)

	return &Components{Store: store, DB: db, Service: svc}, nil
}

// Close releases the run index.
func (c *Components) Close() error {
	return c.DB.Close()
}

// Run starts the HTTP server and the vault watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := NewLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("archive_color", cfg.Archive.Color),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	broker := sse.NewBroker(30 * time.Second)
	defer broker.Close()

	svc := c.Service
	svc.OnArchive(func(res *archiveservice.Result) {
		broker.PublishArchive(res.Canvas, res.Archive, res.Cards)
	})
	svc.OnSweep(broker.PublishSweep)

	if cfg.Archive.SweepOnStart {
		if _, err := svc.Sweep(ctx); err != nil {
			logger.Warn("initial sweep failed", slog.String("error", err.Error()))
		}
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.DB.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Archive.Watch {
		g.Go(func() error {
			return watcher.Watch(gCtx, cfg.Vault.Path, archiveservice.CanvasExt, cfg.Archive.Debounce, logger,
				func(ctx context.Context, path string) {
					if _, err := svc.Archive(ctx, path); err != nil {
						logger.Warn("watch: archive failed",
							slog.String("canvas", path),
							slog.String("error", err.Error()))
					}
				})
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")
