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

	"github.com/cedretaber/dialogoi-editor-sub004/internal/api"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/mcpserver"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metadata"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/metaservice"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/paths"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/refgraph"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/search"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/sse"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/status"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/storage"
	"github.com/cedretaber/dialogoi-editor-sub004/internal/watcher"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. In MCP mode stdout belongs to the
	// protocol, so logs go to stderr.
	logOut := os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("project_root", root),
		slog.String("search_path", cfg.Search.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The project root must carry the marker file.
	if _, err := os.Stat(filepath.Join(root, metadata.ProjectMarker)); err != nil {
		return fmt.Errorf("not a dialogoi project (missing %s): %s", metadata.ProjectMarker, root)
	}

	// Initialize storage and the path resolver for this project session.
	store, err := storage.NewFS(root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	resolver := paths.NewResolver(root)
	meta := metadata.NewAccessor(store, resolver)

	// Build the reference graph from the metadata records.
	graph := refgraph.New(store, meta, resolver, logger)
	if err := graph.Initialize(ctx); err != nil {
		return fmt.Errorf("build reference graph: %w", err)
	}
	logger.Info("Reference graph built", slog.Int("nodes", graph.Len()))

	// Initialize the SQLite search index.
	db, err := search.Open(cfg.Search.Path)
	if err != nil {
		return fmt.Errorf("init search index: %w", err)
	}
	defer db.Close()

	if err := search.Sync(ctx, db, store, meta, resolver, logger); err != nil {
		logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}

	// Domain services.
	svc := metaservice.NewService(store, meta, resolver, graph, logger)
	recon := status.NewReconciler(store, meta, resolver, logger)

	if app.mcp {
		return runMCP(svc, recon, graph, db, resolver, logger)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API handler and router.
	h := api.NewHandler(svc, recon, graph, db, resolver)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		deps := watcher.Deps{
			Store:    store,
			Meta:     meta,
			Resolver: resolver,
			Graph:    graph,
			Index:    db,
			Service:  svc,
			Logger:   logger,
		}
		watcher.Watch(gCtx, deps, func(kind, path string) {
			broker.PublishFileEvent(kind, path)
		})
		return nil
	})

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

// runMCP serves the MCP tool surface over stdio until the client disconnects.
func runMCP(svc *metaservice.Service, recon *status.Reconciler, graph *refgraph.Graph, db *search.DB, resolver *paths.Resolver, logger *slog.Logger) error {
	logger.Info("Starting MCP server on stdio")
	srv := mcpserver.New(svc, recon, graph, db, resolver)
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
