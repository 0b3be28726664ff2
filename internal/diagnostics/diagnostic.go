package diagnostics

import (
	"path/filepath"
	"strings"

	"github.com/conneroisu/previewd/internal/render"
)

// Diagnostic is a display-ready description of a render failure. Absent
// fields are empty strings.
type Diagnostic struct {
	Filename    string   `json:"filename"`
	SourceCode  string   `json:"sourceCode,omitempty"`
	CodeExcerpt string   `json:"codeExcerpt,omitempty"`
	Position    Position `json:"position"`
	Message     string   `json:"message"`
	Kind        string   `json:"errorKind"`
	Stack       string   `json:"rawStack"`

	// SourceRead is set once the failing file was read, even when empty.
	SourceRead bool `json:"sourceRead"`
}

// HasSource reports whether the failing file could be read.
func (d Diagnostic) HasSource() bool { return d.SourceRead }

// HasExcerpt reports whether a code frame is available.
func (d Diagnostic) HasExcerpt() bool { return d.CodeExcerpt != "" }

// Builder composes decoding, source loading and excerpt formatting.
type Builder struct {
	root      string
	decoder   *StackDecoder
	formatter *ExcerptFormatter
	sources   *SourceCache
}

// NewBuilder creates a builder resolving files under root. stripSegments is
// the depth of the build-output wrapper directory in stack filenames.
func NewBuilder(root string, stripSegments int, sources *SourceCache) *Builder {
	if sources == nil {
		sources = NewSourceCache(0)
	}
	return &Builder{
		root:      root,
		decoder:   &StackDecoder{Root: root, StripSegments: stripSegments},
		formatter: NewExcerptFormatter(sources),
		sources:   sources,
	}
}

// Build turns failure into a Diagnostic. It never fails; lookups that do not
// succeed leave their fields empty.
func (b *Builder) Build(failure render.Failure) Diagnostic {
	pos := b.decoder.Decode(failure.Stack)

	d := Diagnostic{
		Position: pos,
		Message:  lastLine(failure.Message),
		Kind:     failure.Kind,
		Stack:    failure.Stack,
	}
	if pos.Filename == "" {
		return d
	}

	d.Filename = b.absolute(pos.Filename)
	d.Position.Filename = d.Filename

	source, ok := b.sources.Read(d.Filename)
	if !ok {
		return d
	}
	d.SourceCode = source
	d.SourceRead = true

	if excerpt, ok := b.formatter.FormatSource(source, pos); ok {
		d.CodeExcerpt = excerpt
	}
	return d
}

func (b *Builder) absolute(filename string) string {
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(b.root, filename)
	}
	if abs, err := filepath.Abs(filename); err == nil {
		return abs
	}
	return filepath.Clean(filename)
}

// lastLine keeps the final non-blank line of a multi-line message.
func lastLine(message string) string {
	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
