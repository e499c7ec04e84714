// Package internal provides the main application initialization and runtime logic.
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

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/updater"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOut: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger initialises the structured JSON logger.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openContent builds the content service and indexes the tree.
func (a *application) openContent(ctx context.Context, logger *slog.Logger, serving bool) (*content.Service, error) {
	cfg := a.config

	svc, err := content.New(content.Options{
		Dir:         cfg.Content.Dir,
		Ignore:      cfg.Content.Ignore,
		Workers:     cfg.Content.Workers,
		Parsers:     a.parsers,
		Aliases:     cfg.Content.Extensions,
		Parser:      cfg.ParserOptions(),
		CachePath:   cfg.Cache.Path,
		SearchKeys:  cfg.Search.Keys,
		SnapshotDir: cfg.Snapshot.Dir,
		Dev:         cfg.Snapshot.Dev,
		AutoSave:    serving && cfg.Snapshot.Dev,
	}, logger, a.hooks)
	if err != nil {
		return nil, fmt.Errorf("init content: %w", err)
	}

	start := time.Now()
	if err := svc.Init(ctx); err != nil {
		_ = svc.Close()
		return nil, err
	}
	logger.Info("Content indexed",
		slog.Int("records", len(svc.Records())),
		slog.Int("dirs", len(svc.Dirs())),
		slog.Duration("took", time.Since(start)))
	return svc, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_dir", cfg.Content.Dir),
		slog.String("snapshot_dir", cfg.Snapshot.Dir),
		slog.String("cache_path", cfg.Cache.Path),
		slog.Bool("watch", cfg.Content.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The watcher needs an existing root.
	if cfg.Content.Watch {
		if err := os.MkdirAll(cfg.Content.Dir, 0o755); err != nil {
			return fmt.Errorf("create content dir: %w", err)
		}
	}

	svc, err := app.openContent(ctx, logger, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.Snapshot.Dir != "" {
		path, err := svc.Save()
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		logger.Info("Snapshot written", slog.String("path", path))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	svc.OnChange(func(ch updater.Change) {
		broker.PublishChange(ch.Removed, ch.Added)
	})

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !svc.Ready() {
			writeStatus(w, http.StatusServiceUnavailable, "indexing")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the collection in sync with the content tree.
	if cfg.Content.Watch {
		g.Go(func() error {
			return svc.Watch(gCtx)
		})
	}

	// Start HTTP server.
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

		// Unblocks the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Build indexes the content tree once, writes the snapshot and returns its
// path.
func Build(ctx context.Context, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	if app.config.Snapshot.Dir == "" {
		return "", fmt.Errorf("build: snapshot.dir is not set")
	}
	logger := app.logger()

	svc, err := app.openContent(ctx, logger, false)
	if err != nil {
		return "", err
	}
	defer svc.Close()

	path, err := svc.Save()
	if err != nil {
		return "", fmt.Errorf("build: %w", err)
	}
	logger.Info("Snapshot written", slog.String("path", path))
	return path, nil
}

// ServeMCP indexes the content tree and serves the MCP tools over stdio until
// the client disconnects. Logs go to stderr unless redirected.
func ServeMCP(ctx context.Context, version string, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	svc, err := app.openContent(ctx, logger, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if app.config.Content.Watch {
		go func() {
			if err := svc.Watch(watchCtx); err != nil {
				logger.Warn("watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	return mcpserver.New(svc, version).ServeStdio()
}

// Query indexes the content tree, runs a single request and writes the
// result as JSON to w.
func Query(ctx context.Context, req content.Request, w io.Writer, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	svc, err := app.openContent(ctx, logger, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	out, err := svc.Run(req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
