package diagnostics

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/fatih/color"
)

const (
	defaultLinesAbove = 2
	defaultLinesBelow = 3
	maxCaretPad       = 512
)

var (
	markerColor = forcedColor(color.FgRed, color.Bold)
	gutterColor = forcedColor(color.FgHiBlack)
	focusColor  = forcedColor(color.Bold)
)

// forcedColor returns a colour that emits escape codes even when stdout is
// not a terminal; the output is converted to HTML, never printed.
func forcedColor(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// ExcerptFormatter frames a few lines of source around a position.
type ExcerptFormatter struct {
	Sources    *SourceCache
	LinesAbove int
	LinesBelow int
}

// NewExcerptFormatter creates a formatter reading files through sources.
func NewExcerptFormatter(sources *SourceCache) *ExcerptFormatter {
	return &ExcerptFormatter{
		Sources:    sources,
		LinesAbove: defaultLinesAbove,
		LinesBelow: defaultLinesBelow,
	}
}

// Format reads filename and frames pos in it. The result is HTML-safe markup.
// It reports false when filename is empty, unreadable or pos.Line is outside
// the file.
func (f *ExcerptFormatter) Format(filename string, pos Position) (string, bool) {
	if filename == "" {
		return "", false
	}
	source, ok := f.Sources.Read(filename)
	if !ok {
		return "", false
	}
	return f.FormatSource(source, pos)
}

// FormatSource frames pos within source.
func (f *ExcerptFormatter) FormatSource(source string, pos Position) (excerpt string, ok bool) {
	defer func() {
		if recover() != nil {
			excerpt, ok = "", false
		}
	}()

	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return "", false
	}

	above, below := f.LinesAbove, f.LinesBelow
	if above < 0 {
		above = 0
	}
	if below < 0 {
		below = 0
	}
	start := max(1, pos.Line-above)
	end := min(len(lines), pos.Line+below)
	width := len(strconv.Itoa(end))

	var b strings.Builder
	for n := start; n <= end; n++ {
		code := sanitizeLine(lines[n-1])
		gutter := fmt.Sprintf("%*d |", width, n)

		if n != pos.Line {
			b.WriteString("  " + gutterColor.Sprint(gutter))
			if code != "" {
				b.WriteString(" " + code)
			}
			b.WriteString("\n")
			continue
		}

		b.WriteString(markerColor.Sprint(">") + " " + focusColor.Sprint(gutter))
		if code != "" {
			b.WriteString(" " + code)
		}
		b.WriteString("\n")

		if pos.Column > 0 {
			blank := strings.Repeat(" ", width) + " |"
			b.WriteString("  " + gutterColor.Sprint(blank) + " " + caretPadding(code, pos.Column) + markerColor.Sprint("^") + "\n")
		}
	}

	return ANSIToHTML(strings.TrimRight(b.String(), "\n")), true
}

// sanitizeLine strips control characters from a source line so that only
// the formatter's own escape sequences reach the HTML converter.
func sanitizeLine(line string) string {
	line = strings.ToValidUTF8(line, "\uFFFD")
	return strings.Map(func(r rune) rune {
		if r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, line)
}

// caretPadding lines the caret up with column, keeping tabs as tabs.
func caretPadding(code string, column int) string {
	runes := []rune(code)
	limit := min(column-1, len(runes), maxCaretPad)

	var b strings.Builder
	for i := 0; i < limit; i++ {
		if runes[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
