// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/gitx"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/store"
	syncsvc "github.com/starford/ansuz/internal/sync"
)

// runtime holds the wired application components shared by all run modes.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	db     *store.DB
	runner *syncsvc.Runner

	manifestAbs string
	contentAbs  string

	// gitErr records why no git source is available; incremental runs
	// against a git revision require it to be nil.
	gitErr error
}

func (rt *runtime) close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

func buildApp(opts []Option) (*Config, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app.config, nil
}

// newRuntime wires the store, content provider, git source and runner
// from configuration. logOut is where structured logs go; serve and CLI
// modes use stdout, MCP mode uses stderr to keep stdout for the protocol.
func newRuntime(cfg *Config, logOut *os.File) (*runtime, error) {
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	manifestAbs, err := filepath.Abs(cfg.Manifest.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	contentAbs, err := filepath.Abs(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve content path: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("manifest_path", manifestAbs),
		slog.String("content_path", contentAbs),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	cp, err := content.NewFS(contentAbs)
	if err != nil {
		return nil, fmt.Errorf("init content provider: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	// Locate the repository holding the manifest. Without one, full
	// rebuilds and watch mode still work; revision-based incremental
	// runs are rejected.
	var (
		source      gitx.Source = &gitx.Fake{}
		manifestRel             = filepath.Base(manifestAbs)
		contentRel              = "."
		gitErr      error
	)
	repo, err := gitx.Discover(filepath.Dir(manifestAbs))
	if err != nil {
		gitErr = fmt.Errorf("discover git repository: %w", err)
		logger.Warn("no git repository found, incremental mode unavailable",
			slog.String("error", err.Error()))
	} else {
		source = repo
		if manifestRel, err = repo.Rel(manifestAbs); err != nil {
			db.Close()
			return nil, fmt.Errorf("manifest path outside repository: %w", err)
		}
		if contentRel, err = repo.Rel(contentAbs); err != nil {
			db.Close()
			return nil, fmt.Errorf("content path outside repository: %w", err)
		}
	}

	runner := syncsvc.NewRunner(syncsvc.RunnerConfig{
		Store:        db,
		Content:      cp,
		Source:       source,
		ManifestPath: manifestAbs,
		ManifestRel:  manifestRel,
		ContentRel:   contentRel,
		Logger:       logger,
	})

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		runner:      runner,
		manifestAbs: manifestAbs,
		contentAbs:  contentAbs,
		gitErr:      gitErr,
	}, nil
}

// RunRebuild replays the entire manifest against the store and exits.
func RunRebuild(ctx context.Context, opts ...Option) error {
	cfg, err := buildApp(opts)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.runner.Rebuild()
	if report != nil {
		rt.logger.Info("rebuild finished", slog.String("summary", report.Summary()))
		fmt.Println(report.Summary())
	}
	return err
}

// RunReconcile diffs the manifest against the given git base revision and
// applies only the resulting mutations.
func RunReconcile(ctx context.Context, base string, opts ...Option) error {
	cfg, err := buildApp(opts)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.gitErr != nil {
		return rt.gitErr
	}

	report, err := rt.runner.Reconcile(base)
	if report != nil {
		rt.logger.Info("reconcile finished",
			slog.String("base", base),
			slog.String("summary", report.Summary()))
		fmt.Println(report.Summary())
	}
	return err
}

// RunServe starts the HTTP server with the filesystem watcher: manifest or
// content changes trigger reconciliation and completed runs are pushed to
// SSE subscribers.
func RunServe(ctx context.Context, opts ...Option) error {
	cfg, err := buildApp(opts)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	broker := sse.NewBroker()
	defer broker.Close()
	rt.runner.SetNotify(func(report *syncsvc.Report) {
		broker.PublishReport(report)
	})

	// Initial run so the store reflects the manifest before requests come in.
	if _, err := rt.runner.ReconcileFromMemory(); err != nil {
		logger.Warn("initial reconciliation failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(rt.runner, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := syncsvc.Watch(gCtx, rt.runner, rt.manifestAbs, rt.contentAbs, logger); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdin/stdout. Logs go to stderr so they
// do not interleave with the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	cfg, err := buildApp(opts)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(rt.runner, rt.db).ServeStdio()
}
