package diagnostics

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
)

//go:generate templ generate -f page.templ

// Page renders the error document shown for a failed render of path.
func Page(path string, d Diagnostic) templ.Component {
	return errorPage(path, d)
}

// WritePage writes the error document for path to w.
func WritePage(ctx context.Context, w io.Writer, path string, d Diagnostic) error {
	return Page(path, d).Render(ctx, w)
}

func (d Diagnostic) kindLabel() string {
	if d.Kind == "" {
		return "Error"
	}
	return d.Kind
}

// location is the filename with the decoded line and column when known.
func (d Diagnostic) location() string {
	if d.Position.Line <= 0 {
		return d.Filename
	}
	return d.Filename + ":" + strconv.Itoa(d.Position.Line) + ":" + strconv.Itoa(d.Position.Column)
}

func editorLink(d Diagnostic) string {
	q := url.Values{}
	q.Set("fileName", d.Filename)
	q.Set("lineNumber", strconv.Itoa(d.Position.Line))
	return "/__open-stack-frame-in-editor?" + q.Encode()
}
