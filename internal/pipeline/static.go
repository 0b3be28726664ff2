package pipeline

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// StaticHandler serves regular files from the public directory. Directories
// are never listed or index-served; they pass through to the 404.
type StaticHandler struct {
	root string
}

// NewStaticHandler serves files below root.
func NewStaticHandler(root string) *StaticHandler {
	return &StaticHandler{root: root}
}

// Name implements Handler.
func (*StaticHandler) Name() string { return "static" }

// TryHandle implements Handler.
func (h *StaticHandler) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	if h.root == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		return PassThrough
	}

	// Cleaning a rooted path removes any "..", so the join stays below root.
	name := filepath.Join(h.root, filepath.FromSlash(path.Clean("/"+r.URL.Path)))

	f, err := os.Open(name)
	if err != nil {
		return PassThrough
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return PassThrough
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return Claimed
}
