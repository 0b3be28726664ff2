package diagnostics

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

var ansiPalette = [8]string{"#000000", "#cd3131", "#0dbc79", "#e5e510", "#2472c8", "#bc3fbc", "#11a8cd", "#e5e5e5"}

var ansiBrightPalette = [8]string{"#666666", "#f14c4c", "#23d18b", "#f5f543", "#3b8eea", "#d670d6", "#29b8db", "#ffffff"}

type sgrState struct {
	fg, bg    string
	bold      bool
	faint     bool
	italic    bool
	underline bool
}

func (s sgrState) style() string {
	var parts []string
	if s.fg != "" {
		parts = append(parts, "color:"+s.fg)
	}
	if s.bg != "" {
		parts = append(parts, "background-color:"+s.bg)
	}
	if s.bold {
		parts = append(parts, "font-weight:bold")
	}
	if s.faint {
		parts = append(parts, "opacity:0.7")
	}
	if s.italic {
		parts = append(parts, "font-style:italic")
	}
	if s.underline {
		parts = append(parts, "text-decoration:underline")
	}
	return strings.Join(parts, ";")
}

// ANSIToHTML converts text carrying ANSI SGR colour sequences into
// HTML-escaped markup with inline <span style> elements. Other escape
// sequences, including OSC, DCS and APC strings, and control characters
// (except newline and tab) are dropped. Invalid UTF-8 is replaced.
func ANSIToHTML(s string) (markup string) {
	s = strings.ToValidUTF8(s, "\uFFFD")
	input := s

	defer func() {
		// The parser indexes a fixed parameter buffer.
		if recover() != nil {
			markup = html.EscapeString(stripControls(ansi.Strip(input)))
		}
	}()

	var (
		out   strings.Builder
		text  strings.Builder
		state sgrState
	)

	flush := func() {
		if text.Len() == 0 {
			return
		}
		escaped := html.EscapeString(text.String())
		if style := state.style(); style != "" {
			fmt.Fprintf(&out, `<span style="%s">%s</span>`, style, escaped)
		} else {
			out.WriteString(escaped)
		}
		text.Reset()
	}

	p := ansi.NewParser()
	var pstate byte
	for len(s) > 0 {
		seq, _, n, next := ansi.DecodeSequence(s, pstate, p)
		if n <= 0 {
			n = 1
			seq = s[:1]
		}
		s = s[n:]
		pstate = next

		switch {
		case next != ansi.NormalState:
			// Unterminated sequence at the end of the input.
		case ansi.HasEscPrefix(seq) || ansi.HasCsiPrefix(seq):
			if isSGR(seq, p) {
				flush()
				state.apply(sgrParams(p.Params()))
			}
		default:
			text.WriteString(stripControls(seq))
		}
	}
	flush()

	return out.String()
}

// isSGR reports whether seq is a complete "CSI ... m" sequence.
func isSGR(seq string, p *ansi.Parser) bool {
	if !ansi.HasCsiPrefix(seq) {
		return false
	}
	cmd := ansi.Cmd(p.Command())
	return cmd.Final() == 'm' && cmd.Prefix() == 0 && cmd.Intermediate() == 0
}

// sgrParams unpacks parameters; missing ones read as 0.
func sgrParams(params ansi.Params) []int {
	codes := make([]int, len(params))
	for i, param := range params {
		codes[i] = param.Param(0)
	}
	return codes
}

func stripControls(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
}

func (s *sgrState) apply(codes []int) {
	if len(codes) == 0 {
		*s = sgrState{}
		return
	}

	for k := 0; k < len(codes); k++ {
		n := codes[k]
		switch {
		case n == 0:
			*s = sgrState{}
		case n == 1:
			s.bold = true
		case n == 2:
			s.faint = true
		case n == 3:
			s.italic = true
		case n == 4:
			s.underline = true
		case n == 22:
			s.bold, s.faint = false, false
		case n == 23:
			s.italic = false
		case n == 24:
			s.underline = false
		case n >= 30 && n <= 37:
			s.fg = ansiPalette[n-30]
		case n == 39:
			s.fg = ""
		case n >= 40 && n <= 47:
			s.bg = ansiPalette[n-40]
		case n == 49:
			s.bg = ""
		case n >= 90 && n <= 97:
			s.fg = ansiBrightPalette[n-90]
		case n >= 100 && n <= 107:
			s.bg = ansiBrightPalette[n-100]
		case n == 38 || n == 48:
			colour, used := extendedColour(codes[k+1:])
			k += used
			if colour == "" {
				continue
			}
			if n == 38 {
				s.fg = colour
			} else {
				s.bg = colour
			}
		}
	}
}

// extendedColour decodes the "5;n" and "2;r;g;b" forms following a 38 or 48
// code. It returns the CSS colour and the number of codes consumed.
func extendedColour(codes []int) (string, int) {
	if len(codes) == 0 {
		return "", 0
	}

	switch codes[0] {
	case 5:
		if len(codes) < 2 {
			return "", len(codes)
		}
		n := codes[1]
		switch {
		case n < 0 || n > 255:
			return "", 2
		case n < 8:
			return ansiPalette[n], 2
		case n < 16:
			return ansiBrightPalette[n-8], 2
		case n >= 232:
			level := 8 + (n-232)*10
			return fmt.Sprintf("rgb(%d,%d,%d)", level, level, level), 2
		default:
			n -= 16
			return fmt.Sprintf("rgb(%d,%d,%d)", cubeLevel(n/36), cubeLevel((n/6)%6), cubeLevel(n%6)), 2
		}
	case 2:
		if len(codes) < 4 {
			return "", len(codes)
		}
		rgb := codes[1:4]
		for _, v := range rgb {
			if v < 0 || v > 255 {
				return "", 4
			}
		}
		return fmt.Sprintf("rgb(%d,%d,%d)", rgb[0], rgb[1], rgb[2]), 4
	default:
		return "", 0
	}
}

func cubeLevel(v int) int {
	if v == 0 {
		return 0
	}
	return 55 + v*40
}
