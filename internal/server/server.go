// Package server assembles the development preview server: a chi router
// carrying the built-in endpoints (health, metrics, live reload, any
// developer setup routes) in front of the dispatch pipeline that answers
// every other request.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/previewd/internal/config"
	"github.com/conneroisu/previewd/internal/diagnostics"
	"github.com/conneroisu/previewd/internal/editor"
	"github.com/conneroisu/previewd/internal/livereload"
	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/metrics"
	"github.com/conneroisu/previewd/internal/pages"
	"github.com/conneroisu/previewd/internal/pipeline"
	"github.com/conneroisu/previewd/internal/validation"
)

// Built-in endpoints mounted ahead of the pipeline.
const (
	HealthPath  = "/__health"
	MetricsPath = "/__metrics"
)

const (
	manifestDebounce = 200 * time.Millisecond
	shutdownTimeout  = 5 * time.Second
)

// Options are the collaborators of a PreviewServer. Config and Logger are
// required; everything else may be nil.
type Options struct {
	Config      *config.Config
	Logger      logging.Logger
	Metrics     *metrics.Metrics
	Pages       *pages.Index
	Renderer    pipeline.PageRenderer
	Diagnostics *diagnostics.Builder
	Executor    pipeline.Executor
	Editor      editor.Launcher

	// Setup registers extra developer middleware and routes. It is called
	// exactly once, before any built-in route is mounted.
	Setup func(chi.Router, *config.Config)
}

// PreviewServer serves the site being developed.
type PreviewServer struct {
	config   *config.Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	pages    *pages.Index
	hub      *livereload.Hub
	pipeline *pipeline.Pipeline
	router   chi.Router

	httpServer   *http.Server
	addr         net.Addr
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New builds the server and its routes. Nothing is started until Start.
func New(opts Options) (*PreviewServer, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &PreviewServer{
		config:  opts.Config,
		logger:  logger.WithComponent("server"),
		metrics: opts.Metrics,
		pages:   opts.Pages,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	// chi rejects middleware added after the first route.
	if opts.Setup != nil {
		opts.Setup(r, s.config)
	}

	r.Get(HealthPath, s.handleHealth)
	if s.metrics != nil {
		r.Handle(MetricsPath, promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.hub = livereload.New(r, s.config.ProjectPath(s.config.Project.PublicDir), nil, logger)

	deps := pipeline.Deps{
		Renderer:    opts.Renderer,
		Diagnostics: opts.Diagnostics,
		Executor:    opts.Executor,
		Refresher:   &dataRefresher{pages: s.pages, hub: s.hub, logger: s.logger},
		Editor:      opts.Editor,
		Logger:      logger,
	}
	if s.pages != nil {
		deps.Pages = s.pages
	}
	if s.metrics != nil {
		deps.Observer = s.metrics
		deps.Upstream = s.metrics
		deps.Refreshes = s.metrics
	}
	s.pipeline = pipeline.New(s.config, deps)

	r.Handle("/*", s.pipeline)
	s.router = r

	return s, nil
}

// Handler returns the server's root handler.
func (s *PreviewServer) Handler() http.Handler {
	return s.router
}

// Hub returns the live-reload hub.
func (s *PreviewServer) Hub() *livereload.Hub {
	return s.hub
}

// Addr returns the bound listen address, or nil before Start has bound it.
func (s *PreviewServer) Addr() net.Addr {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Start listens on the configured address and serves until ctx is
// cancelled or a component fails. A cancelled ctx is a clean shutdown and
// returns nil.
func (s *PreviewServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr(), err)
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr = ln.Addr()
	server := s.httpServer
	s.serverMutex.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.hub.Run(gctx)
	})

	if s.pages != nil {
		g.Go(func() error {
			s.watchManifest(gctx)
			return nil
		})
	}

	g.Go(func() error {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	url := fmt.Sprintf("http://%s", ln.Addr().String())
	s.logger.Info(ctx, "preview server listening",
		"url", url,
		"handlers", s.pipeline.Handlers(),
	)
	if s.config.Server.Open {
		go s.openBrowser(ctx, url)
	}

	return g.Wait()
}

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// expires. It is safe to call more than once.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			s.logger.Info(ctx, "shutting down preview server")
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

func (s *PreviewServer) watchManifest(ctx context.Context) {
	if err := s.pages.Reload(ctx); err != nil {
		s.logger.Warn(ctx, err, "starting with an empty page index")
	}

	fw, err := s.pages.Watch(ctx, manifestDebounce)
	if err != nil {
		s.logger.Warn(ctx, err, "not watching page manifest")
		return
	}
	<-ctx.Done()
	_ = fw.Stop()
}

func (s *PreviewServer) openBrowser(ctx context.Context, url string) {
	if err := validation.ValidateURL(url); err != nil {
		s.logger.Warn(ctx, err, "browser open failed due to invalid URL", "url", url)
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "failed to open browser", "url", url)
	}
}
