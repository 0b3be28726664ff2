package pipeline

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/previewd/internal/config"
	"github.com/conneroisu/previewd/internal/errors"
	"github.com/conneroisu/previewd/internal/logging"
)

// UpstreamObserver records proxied calls. status is 0 on transport failure.
type UpstreamObserver interface {
	ObserveUpstream(method string, status int, duration time.Duration)
}

// Hop-by-hop headers are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyHandler forwards requests under configured prefixes to their target.
// Upstream responses are relayed verbatim, including redirects and
// compressed bodies. There is no timeout; a hung upstream hangs the request
// until the client goes away.
type ProxyHandler struct {
	rules    []config.ProxyRule
	client   *http.Client
	observer UpstreamObserver
	logger   logging.Logger
}

// NewProxyHandler creates the handler. Rules are tried in the given order.
func NewProxyHandler(rules []config.ProxyRule, observer UpstreamObserver, logger logging.Logger) *ProxyHandler {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:       100,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: true,
	}

	return &ProxyHandler{
		rules: append([]config.ProxyRule(nil), rules...),
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		observer: observer,
		logger:   logger.WithComponent("proxy"),
	}
}

// Name implements Handler.
func (*ProxyHandler) Name() string { return "proxy" }

// Match returns the first rule whose prefix is a path prefix of path.
func (h *ProxyHandler) Match(path string) (config.ProxyRule, bool) {
	for _, rule := range h.rules {
		if hasPathPrefix(path, rule.Prefix) {
			return rule, true
		}
	}
	return config.ProxyRule{}, false
}

// hasPathPrefix matches whole segments: "/api" matches "/api" and
// "/api/users" but not "/apiary".
func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// TryHandle implements Handler.
func (h *ProxyHandler) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	rule, ok := h.Match(r.URL.Path)
	if !ok {
		return PassThrough
	}

	target := rule.Target + r.URL.RequestURI()
	ctx := r.Context()

	out, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		h.fail(w, r, target, err)
		return Claimed
	}
	out.ContentLength = r.ContentLength
	out.Header = r.Header.Clone()
	out.Header.Del("Host")
	for _, name := range hopHeaders {
		out.Header.Del(name)
	}
	if r.ContentLength == 0 {
		out.Body = nil
	}

	start := time.Now()
	resp, err := h.client.Do(out)
	if err != nil {
		if h.observer != nil {
			h.observer.ObserveUpstream(r.Method, 0, time.Since(start))
		}
		h.fail(w, r, target, err)
		return Claimed
	}
	defer resp.Body.Close()

	if h.observer != nil {
		h.observer.ObserveUpstream(r.Method, resp.StatusCode, time.Since(start))
	}

	header := w.Header()
	for key, values := range resp.Header {
		header[key] = values
	}
	for _, name := range hopHeaders {
		header.Del(name)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(flushWriter{w}, resp.Body); err != nil && ctx.Err() == nil {
		h.logger.Warn(ctx, err, "proxy stream interrupted", "target", target)
	}
	return Claimed
}

func (h *ProxyHandler) fail(w http.ResponseWriter, r *http.Request, target string, err error) {
	if r.Context().Err() != nil {
		// The client is gone; nobody will read a response.
		return
	}
	perr := errors.NewNetworkError(errors.ErrCodeProxyTransport, "proxy upstream request failed", err).
		WithContext("target", target)
	h.logger.Error(r.Context(), perr, "proxy request failed", "method", r.Method, "target", target)
	w.WriteHeader(http.StatusInternalServerError)
}

// flushWriter flushes after every write so streamed responses reach the
// client as the upstream produces them.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if flusher, ok := f.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return n, err
}
