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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/reblog/internal/api"
	"github.com/starford/reblog/internal/catalog"
	"github.com/starford/reblog/internal/mcpserver"
	"github.com/starford/reblog/internal/post"
	"github.com/starford/reblog/internal/render"
	"github.com/starford/reblog/internal/sitemap"
	"github.com/starford/reblog/internal/sse"
	"github.com/starford/reblog/internal/storage"
	"github.com/starford/reblog/internal/watch"
)

// pipeline is the content stack shared by every command.
type pipeline struct {
	logger  *slog.Logger
	store   *storage.FS
	builder *post.Builder
	catalog *catalog.Catalog
}

func setup(opts []Option) (*application, *pipeline, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_path", cfg.Content.Path),
		slog.Bool("watch", cfg.Content.Watch),
		slog.String("site_domain", cfg.Site.Domain),
		slog.String("log_level", cfg.App.LogLevel.String()))

	builder := post.NewBuilder(render.New(render.WithHighlightStyle(cfg.Render.HighlightStyle)))

	return app, &pipeline{logger: logger, builder: builder}, nil
}

// open sets up the posts directory and an empty catalog over it.
func (p *pipeline) open(cfg *Config) error {
	store, err := storage.NewFS(cfg.Content.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	p.store = store
	p.catalog = catalog.New(store, p.builder,
		catalog.WithWorkers(cfg.Content.Workers),
		catalog.WithLogger(p.logger))
	return nil
}

// load opens the posts directory and runs the startup load. A post that
// fails to build stops the program.
func (p *pipeline) load(ctx context.Context, cfg *Config) error {
	if err := p.open(cfg); err != nil {
		return err
	}
	return p.firstLoad(ctx)
}

func (p *pipeline) firstLoad(ctx context.Context) error {
	if _, err := p.catalog.Load(ctx); err != nil {
		return fmt.Errorf("load posts: %w", err)
	}
	return nil
}

// watch follows the posts directory until ctx is done. A watcher failure is
// logged; the already loaded posts keep being served.
func (p *pipeline) watch(ctx context.Context, cfg *Config, cb watch.EventCallback) {
	if err := watch.Watch(ctx, p.store.Root(), p.catalog, cfg.Content.Debounce, p.logger, cb); err != nil {
		p.logger.Error("watcher failed", slog.String("error", err.Error()))
	}
}

// mountHealth registers the liveness and readiness probes. Ready answers 503
// until ready reports true.
func mountHealth(r chi.Router, ready func() bool) {
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

// Run serves the posts over HTTP until ctx is cancelled or a shutdown signal
// arrives. The server starts before the first load finishes; post routes
// answer 503 until it does. A failing first load stops the server.
func Run(ctx context.Context, opts ...Option) error {
	app, p, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := p.logger

	if err := p.open(cfg); err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(sse.WithCatalogThrottle(2 * time.Second))
	defer broker.Close()

	apiRouter := api.NewRouter(p.catalog, cfg.Site.Domain, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	mountHealth(r, p.catalog.Loaded)
	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.firstLoad(gCtx); err != nil {
			if gCtx.Err() != nil {
				return nil
			}
			return err
		}
		if cfg.Content.Watch {
			p.watch(gCtx, cfg, broker.PublishPostEvent)
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

// RunMCP loads the posts and serves the MCP tools on stdin/stdout. Logs go
// to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, p, err := setup(opts)
	if err != nil {
		return err
	}
	if err := p.load(ctx, app.config); err != nil {
		return err
	}

	if app.config.Content.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go p.watch(watchCtx, app.config, nil)
	}

	return mcpserver.New(p.catalog, p.builder, app.version).ServeStdio()
}

// WriteSitemap loads the posts and writes the sitemap for domain to out,
// a path relative to the posts directory.
func WriteSitemap(ctx context.Context, domain, out string, opts ...Option) error {
	app, p, err := setup(opts)
	if err != nil {
		return err
	}
	if domain == "" {
		domain = app.config.Site.Domain
	}
	if err := p.load(ctx, app.config); err != nil {
		return err
	}
	entries := sitemap.Entries(p.catalog)
	if err := sitemap.Write(p.store, out, domain, entries); err != nil {
		return err
	}
	p.logger.Info("Sitemap written",
		slog.String("path", out),
		slog.Int("urls", len(entries)))
	return nil
}

// RenderFile builds the post stored at path (outside the posts directory
// is fine) and writes it to w as indented JSON.
func RenderFile(path string, w io.Writer, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	_, p, err := setup(opts)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	built, err := p.builder.Build(filepath.Base(path), string(data))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(built)
}
