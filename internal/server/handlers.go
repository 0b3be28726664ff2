package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/conneroisu/previewd/internal/livereload"
	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/pages"
	"github.com/conneroisu/previewd/internal/version"
)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Pages     int       `json:"pages"`
	Browsers  int       `json:"browsers"`
	Handlers  []string  `json:"handlers"`
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.GetShortVersion(),
		Browsers:  s.hub.ClientCount(),
		Handlers:  s.pipeline.Handlers(),
	}
	if s.pages != nil {
		health.Pages = s.pages.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "failed to encode health response")
	}
}

// dataRefresher is the refresh webhook's target: it re-reads the page index
// and tells browsers to reload.
type dataRefresher struct {
	pages  *pages.Index
	hub    *livereload.Hub
	logger logging.Logger
}

func (d *dataRefresher) RequestRefresh(ctx context.Context, payload []byte) error {
	d.logger.Debug(ctx, "refreshing data", "payload_bytes", len(payload))

	if d.pages != nil {
		if err := d.pages.Reload(ctx); err != nil {
			return err
		}
	}
	d.hub.Broadcast(livereload.ReloadMessage(""))
	return nil
}
