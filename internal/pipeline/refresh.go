package pipeline

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/conneroisu/previewd/internal/logging"
)

// RefreshPath is the webhook endpoint that asks the data layer to refresh.
const RefreshPath = "/__refresh"

const maxRefreshPayload = 1 << 20

// Refresher is the data layer's refresh entry point.
type Refresher interface {
	RequestRefresh(ctx context.Context, payload []byte) error
}

// RefreshObserver is told whether each webhook call fired a refresh.
type RefreshObserver interface {
	ObserveRefresh(triggered bool)
}

// RefreshHandler answers POST /__refresh. The response is always an empty
// 200; authorization only decides whether the refresh signal fires, so
// callers cannot tell whether a secret is configured.
type RefreshHandler struct {
	enabled   bool
	secret    string
	refresher Refresher
	observer  RefreshObserver
	logger    logging.Logger
}

// NewRefreshHandler creates the webhook handler.
func NewRefreshHandler(enabled bool, secret string, refresher Refresher, observer RefreshObserver, logger logging.Logger) *RefreshHandler {
	return &RefreshHandler{
		enabled:   enabled,
		secret:    secret,
		refresher: refresher,
		observer:  observer,
		logger:    logger.WithComponent("refresh"),
	}
}

// Name implements Handler.
func (*RefreshHandler) Name() string { return "refresh" }

// TryHandle implements Handler.
func (h *RefreshHandler) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	if r.Method != http.MethodPost || r.URL.Path != RefreshPath {
		return PassThrough
	}

	triggered := h.authorized(r)
	if h.observer != nil {
		h.observer.ObserveRefresh(triggered)
	}

	if triggered {
		payload, _ := io.ReadAll(io.LimitReader(r.Body, maxRefreshPayload))
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if err := h.refresher.RequestRefresh(ctx, payload); err != nil {
				h.logger.Warn(ctx, err, "data refresh failed")
			}
		}()
		h.logger.Info(r.Context(), "data refresh requested", "remote", r.RemoteAddr)
	} else {
		h.logger.Debug(r.Context(), "refresh webhook ignored", "enabled", h.enabled, "remote", r.RemoteAddr)
	}

	w.WriteHeader(http.StatusOK)
	return Claimed
}

func (h *RefreshHandler) authorized(r *http.Request) bool {
	if !h.enabled || h.refresher == nil {
		return false
	}
	if h.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(h.secret)) == 1
}
