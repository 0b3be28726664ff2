package pipeline

import (
	"net/http"
	"regexp"
)

var hotUpdatePattern = regexp.MustCompile(`\.hot-update\.json$`)

// HotUpdateGuard answers 404 for bundler hot-update manifests nobody else
// served, so a stale client runtime never parses an HTML page as JSON.
type HotUpdateGuard struct{}

// NewHotUpdateGuard creates the guard.
func NewHotUpdateGuard() *HotUpdateGuard { return &HotUpdateGuard{} }

// Name implements Handler.
func (*HotUpdateGuard) Name() string { return "hot_update_guard" }

// TryHandle implements Handler.
func (*HotUpdateGuard) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	if !hotUpdatePattern.MatchString(r.URL.Path) {
		return PassThrough
	}
	http.NotFound(w, r)
	return Claimed
}
