// Package render dispatches on-demand page renders to an external worker pool.
//
// The pool owns the actual rendering (and any parallelism); from the caller's
// point of view a render is a blocking request/response call for exactly one
// path. Failures raised by the renderer come back as *Failure values carrying
// the message, raw stack and error kind needed to build a diagnostic.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conneroisu/previewd/internal/logging"
)

// EnvVar is a single environment entry handed to the renderer.
type EnvVar struct {
	Key   string
	Value string
}

// Request describes one on-demand render attempt.
type Request struct {
	Path      string
	EntryPath string
	Env       []EnvVar
}

// Job is the unit of work submitted to a Pool. Results are aligned to Paths.
type Job struct {
	EntryPath string
	Paths     []string
	Env       []EnvVar
}

//go:generate mockgen -destination=mocks/mock_pool.go -package=mocks github.com/conneroisu/previewd/internal/render Pool

// Pool renders pages off the request goroutine.
type Pool interface {
	RenderHTML(ctx context.Context, job Job) ([]string, error)
}

// Failure is raised when the renderer throws while producing a page.
type Failure struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
	Kind    string `json:"type"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Kind == "" {
		return f.Message
	}
	return f.Kind + ": " + f.Message
}

// AsFailure converts any error into a *Failure. Errors that already are (or
// wrap) a *Failure are returned as is.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Message: err.Error(), Kind: "Error"}
}

// Observer receives the outcome of every render. It may be nil.
type Observer interface {
	ObserveRender(path string, duration time.Duration, err error)
}

// Renderer is the on-demand renderer. It neither retries nor coalesces:
// concurrent renders of the same path are independent pool submissions.
type Renderer struct {
	pool     Pool
	logger   logging.Logger
	observer Observer
}

// NewRenderer creates a Renderer backed by pool.
func NewRenderer(pool Pool, logger logging.Logger, observer Observer) *Renderer {
	return &Renderer{
		pool:     pool,
		logger:   logger.WithComponent("renderer"),
		observer: observer,
	}
}

// Render renders req.Path and returns its markup. Any error is a *Failure.
func (r *Renderer) Render(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	markup, err := r.render(ctx, req)
	if r.observer != nil {
		r.observer.ObserveRender(req.Path, time.Since(start), err)
	}
	if err != nil {
		r.logger.Warn(ctx, err, "render failed", "path", req.Path, "duration", time.Since(start).String())
		return "", err
	}

	r.logger.Debug(ctx, "rendered page", "path", req.Path, "duration", time.Since(start).String())
	return markup, nil
}

func (r *Renderer) render(ctx context.Context, req Request) (string, error) {
	results, err := r.pool.RenderHTML(ctx, Job{
		EntryPath: req.EntryPath,
		Paths:     []string{req.Path},
		Env:       req.Env,
	})
	if err != nil {
		return "", AsFailure(err)
	}
	if len(results) != 1 {
		return "", &Failure{
			Message: fmt.Sprintf("renderer returned %d results for 1 path (%s)", len(results), req.Path),
			Kind:    "RenderError",
		}
	}
	return results[0], nil
}
