package pipeline

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/net/html"

	"github.com/conneroisu/previewd/internal/diagnostics"
	"github.com/conneroisu/previewd/internal/livereload"
	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/render"
)

// PageSet is the index of renderable page paths. It may change between
// requests.
type PageSet interface {
	Has(path string) bool
}

// PageRenderer renders a single page.
type PageRenderer interface {
	Render(ctx context.Context, req render.Request) (string, error)
}

// RenderOptions configure the on-demand render handler.
type RenderOptions struct {
	Pages       PageSet
	Renderer    PageRenderer
	Diagnostics *diagnostics.Builder
	EntryPath   string
	Env         []render.EnvVar
	// HotReload injects the live-reload client into rendered pages.
	HotReload bool
}

// RenderHandler renders known pages on demand and turns render failures
// into a diagnostic error page.
type RenderHandler struct {
	opts   RenderOptions
	logger logging.Logger
}

// NewRenderHandler creates the handler. Without a page set or renderer it
// never claims anything.
func NewRenderHandler(opts RenderOptions, logger logging.Logger) *RenderHandler {
	if opts.Diagnostics == nil {
		opts.Diagnostics = diagnostics.NewBuilder(".", 0, nil)
	}
	return &RenderHandler{opts: opts, logger: logger.WithComponent("render")}
}

// Name implements Handler.
func (*RenderHandler) Name() string { return "render" }

// TryHandle implements Handler.
func (h *RenderHandler) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return PassThrough
	}
	if h.opts.Pages == nil || h.opts.Renderer == nil || !h.opts.Pages.Has(r.URL.Path) {
		return PassThrough
	}

	// Renders run to completion even if the client disconnects.
	ctx := context.WithoutCancel(r.Context())

	markup, err := h.opts.Renderer.Render(ctx, render.Request{
		Path:      r.URL.Path,
		EntryPath: h.opts.EntryPath,
		Env:       h.opts.Env,
	})
	if err != nil {
		h.writeDiagnostic(ctx, w, r, err)
		return Claimed
	}

	if h.opts.HotReload {
		markup = InjectBeforeBodyEnd(markup, livereload.ClientScript)
	}

	etag := markupETag(markup)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return Claimed
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, markup)
	}
	return Claimed
}

func (h *RenderHandler) writeDiagnostic(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) {
	failure := render.AsFailure(err)
	d := h.opts.Diagnostics.Build(*failure)

	h.logger.Error(ctx, err, "page render failed",
		"path", r.URL.Path,
		"file", d.Filename,
		"line", d.Position.Line,
		"column", d.Position.Column,
	)

	var buf bytes.Buffer
	if perr := diagnostics.WritePage(ctx, &buf, r.URL.Path, d); perr != nil {
		h.logger.Error(ctx, perr, "could not render diagnostic page", "path", r.URL.Path)
		buf.Reset()
		buf.WriteString("Failed to render " + html.EscapeString(r.URL.Path) + ": " + html.EscapeString(d.Message))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusInternalServerError)
	if r.Method != http.MethodHead {
		_, _ = w.Write(buf.Bytes())
	}
}

func markupETag(markup string) string {
	sum := blake3.Sum256([]byte(markup))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// InjectBeforeBodyEnd inserts snippet before the document's last </body>
// tag, or appends it when there is none. Tags inside scripts, comments and
// attribute values are not mistaken for the body end.
func InjectBeforeBodyEnd(markup, snippet string) string {
	z := html.NewTokenizer(strings.NewReader(markup))

	offset, insertAt := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				insertAt = offset
			}
		}
		offset += raw
	}

	if insertAt < 0 || insertAt > len(markup) {
		return markup + snippet
	}
	return markup[:insertAt] + snippet + markup[insertAt:]
}
