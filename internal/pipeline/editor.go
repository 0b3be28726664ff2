package pipeline

import (
	"net/http"
	"strconv"

	"github.com/conneroisu/previewd/internal/editor"
	"github.com/conneroisu/previewd/internal/logging"
)

// EditorPath opens a stack frame's file in the developer's editor.
const EditorPath = "/__open-stack-frame-in-editor"

// EditorHandler always answers an empty 200, whether or not the editor
// could be started.
type EditorHandler struct {
	launcher editor.Launcher
	logger   logging.Logger
}

// NewEditorHandler creates the handler. A nil launcher ignores requests.
func NewEditorHandler(launcher editor.Launcher, logger logging.Logger) *EditorHandler {
	return &EditorHandler{launcher: launcher, logger: logger.WithComponent("editor")}
}

// Name implements Handler.
func (*EditorHandler) Name() string { return "editor" }

// TryHandle implements Handler.
func (h *EditorHandler) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	if r.URL.Path != EditorPath {
		return PassThrough
	}

	q := r.URL.Query()
	file := q.Get("fileName")
	line, _ := strconv.Atoi(q.Get("lineNumber"))

	if file != "" && h.launcher != nil {
		if err := h.launcher.Launch(r.Context(), file, line); err != nil {
			h.logger.Warn(r.Context(), err, "could not open file in editor", "file", file, "line", line)
		}
	}

	w.WriteHeader(http.StatusOK)
	return Claimed
}
