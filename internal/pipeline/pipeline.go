// Package pipeline dispatches every inbound request through an ordered chain
// of handlers. Each handler either claims the request and writes the
// response, or passes it on untouched; the first claim wins and an
// unclaimed request ends in a 404.
//
// The default chain, in priority order:
//
//  1. hot-update guard   (*.hot-update.json -> 404)
//  2. GraphQL data API   (/__graphql, /___graphiql, ...)
//  3. refresh webhook    (POST /__refresh)
//  4. editor launch      (/__open-stack-frame-in-editor)
//  5. reverse proxy      (configured prefixes)
//  6. on-demand render   (known page paths)
//  7. static files       (public directory, no directory listings)
package pipeline

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/previewd/internal/config"
	"github.com/conneroisu/previewd/internal/diagnostics"
	"github.com/conneroisu/previewd/internal/editor"
	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/render"
)

// Outcome is the result of offering a request to a handler.
type Outcome int

const (
	// PassThrough means the handler wrote nothing and the next one should run.
	PassThrough Outcome = iota
	// Claimed means the handler owns the response.
	Claimed
)

// String returns the string representation of the Outcome
func (o Outcome) String() string {
	if o == Claimed {
		return "claimed"
	}
	return "pass_through"
}

// Handler is one link of the chain. A handler returning PassThrough must not
// have written to w.
type Handler interface {
	Name() string
	TryHandle(w http.ResponseWriter, r *http.Request) Outcome
}

// Observer is told which handler answered each request.
type Observer interface {
	ObserveDispatch(handler string, status int, duration time.Duration)
}

// NotFoundHandler is the name reported when no handler claims a request.
const NotFoundHandler = "not_found"

// StatusClientClosedRequest is recorded when the client went away before the
// claiming handler wrote a response.
const StatusClientClosedRequest = 499

// Pipeline runs handlers in order until one claims the request. It holds no
// request-scoped state and is safe for concurrent use.
type Pipeline struct {
	handlers []Handler
	logger   logging.Logger
	observer Observer
}

// NewPipeline creates a pipeline over handlers, in the order given.
func NewPipeline(logger logging.Logger, observer Observer, handlers ...Handler) *Pipeline {
	return &Pipeline{
		handlers: handlers,
		logger:   logger.WithComponent("pipeline"),
		observer: observer,
	}
}

// Deps are the collaborators of the default chain. Any of them may be nil;
// the corresponding handler then degrades as documented on it.
type Deps struct {
	Pages       PageSet
	Renderer    PageRenderer
	Diagnostics *diagnostics.Builder
	Executor    Executor
	Refresher   Refresher
	Editor      editor.Launcher
	Upstream    UpstreamObserver
	Refreshes   RefreshObserver
	Observer    Observer
	Logger      logging.Logger
}

// New builds the default chain from an immutable configuration snapshot.
// Configuration changes require building a new Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	env := make([]render.EnvVar, 0, len(cfg.Render.Env))
	for _, kv := range cfg.RenderEnv() {
		env = append(env, render.EnvVar{Key: kv[0], Value: kv[1]})
	}

	return NewPipeline(logger, deps.Observer,
		NewHotUpdateGuard(),
		NewGraphQLHandler(deps.Executor, cfg.GraphQL.IDE, logger),
		NewRefreshHandler(cfg.Refresh.Enabled, cfg.Refresh.Secret, deps.Refresher, deps.Refreshes, logger),
		NewEditorHandler(deps.Editor, logger),
		NewProxyHandler(cfg.Proxy, deps.Upstream, logger),
		NewRenderHandler(RenderOptions{
			Pages:       deps.Pages,
			Renderer:    deps.Renderer,
			Diagnostics: deps.Diagnostics,
			EntryPath:   cfg.ProjectPath(cfg.Render.Entry),
			Env:         env,
			HotReload:   cfg.Development.HotReload,
		}, logger),
		NewStaticHandler(cfg.ProjectPath(cfg.Project.PublicDir)),
	)
}

// Handlers returns the handler names in dispatch order.
func (p *Pipeline) Handlers() []string {
	names := make([]string, len(p.handlers))
	for i, h := range p.handlers {
		names[i] = h.Name()
	}
	return names
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

	name := p.dispatch(ww, r)

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
		if r.Context().Err() != nil {
			status = StatusClientClosedRequest
		}
	}
	if p.observer != nil {
		p.observer.ObserveDispatch(name, status, time.Since(start))
	}
	p.logger.Debug(r.Context(), "dispatched request",
		"handler", name,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
	)
}

func (p *Pipeline) dispatch(w http.ResponseWriter, r *http.Request) string {
	for _, h := range p.handlers {
		if h.TryHandle(w, r) == Claimed {
			return h.Name()
		}
	}
	http.NotFound(w, r)
	return NotFoundHandler
}
