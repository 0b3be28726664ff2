// Package diagnostics turns renderer failures into source-level diagnostics:
// it decodes the failing call site from a raw stack trace, loads the source
// file and frames an HTML-safe code excerpt around the offending position.
//
// Nothing in this package returns an error for bad input. Malformed stacks
// decode to the zero Position and unreadable files yield absent fields.
package diagnostics

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Position is a decoded source location. The zero value means "unknown".
type Position struct {
	Filename string `json:"filename"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// IsZero reports whether p is the unknown-position sentinel.
func (p Position) IsZero() bool {
	return p == Position{}
}

// A call site is a parenthesised "file:line:column" segment.
var callSitePattern = regexp.MustCompile(`\(([^()]*:[^():]*:[^():]*)\)`)

// StackDecoder extracts the first call site from a stack trace.
type StackDecoder struct {
	// Root is joined onto decoded filenames when set.
	Root string
	// StripSegments leading path segments are dropped from decoded
	// filenames. They belong to the build-output wrapper directory.
	StripSegments int
}

// Decode returns the position of the first call site in raw.
func (d *StackDecoder) Decode(raw string) (pos Position) {
	defer func() {
		if recover() != nil {
			pos = Position{}
		}
	}()

	segment, ok := callSite(raw)
	if !ok {
		return Position{}
	}

	tokens := strings.Split(segment, ":")
	if len(tokens) < 3 {
		return Position{}
	}
	tail := tokens[len(tokens)-3:]

	filename := tail[0]
	if strings.TrimSpace(filename) == "" {
		return Position{}
	}

	return Position{
		Filename: d.resolve(filename),
		Line:     parseCount(tail[1]),
		Column:   parseCount(tail[2]),
	}
}

// callSite picks the first line carrying a call site, falling back to the
// first line, and returns the contents of its last call site segment.
func callSite(raw string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	line := lines[0]
	for _, l := range lines {
		if callSitePattern.MatchString(l) {
			line = l
			break
		}
	}

	matches := callSitePattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

func (d *StackDecoder) resolve(filename string) string {
	if d.StripSegments > 0 {
		parts := strings.Split(filepath.ToSlash(filename), "/")
		if d.StripSegments < len(parts) {
			parts = parts[d.StripSegments:]
		} else {
			parts = parts[len(parts)-1:]
		}
		filename = strings.Join(parts, "/")
	}

	if d.Root == "" {
		return filename
	}
	return filepath.Join(d.Root, filepath.FromSlash(filename))
}

func parseCount(token string) int {
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
