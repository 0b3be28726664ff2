package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestANSIToHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text is escaped", `<a href="x">&</a>`, "&lt;a href=&#34;x&#34;&gt;&amp;&lt;/a&gt;"},
		{"foreground colour", "\x1b[31mred\x1b[0m done", `<span style="color:#cd3131">red</span> done`},
		{"bold and bright", "\x1b[1;92mok\x1b[22;39m", `<span style="color:#23d18b;font-weight:bold">ok</span>`},
		{"reset with empty params", "\x1b[4mu\x1b[mx", `<span style="text-decoration:underline">u</span>x`},
		{"256 colour", "\x1b[38;5;9mx", `<span style="color:#f14c4c">x</span>`},
		{"true colour background", "\x1b[48;2;1;2;3mx", `<span style="background-color:rgb(1,2,3)">x</span>`},
		{"non sgr sequences dropped", "a\x1b[2Kb\x1b]c", "ab"},
		{"osc hyperlink body dropped", "\x1b]8;;https://example.com\x1b\\link\x1b]8;;\x1b\\!", "link!"},
		{"osc title terminated by bel", "\x1b]0;window title\x07ok", "ok"},
		{"dcs string dropped", "a\x1bPq#0;2;0;0;0\x1b\\b", "ab"},
		{"apc string dropped", "a\x1b_Gf=24;payload\x1b\\b", "ab"},
		{"private csi is not sgr", "\x1b[?25lx\x1b[>4;2mx", "xx"},
		{"sgr around osc keeps style", "\x1b[31mr\x1b]8;;u\x07ed\x1b[0m", `<span style="color:#cd3131">red</span>`},
		{"control characters dropped", "a\x00b\x07c\td\ne", "abc\td\ne"},
		{"unterminated escape", "a\x1b[31", "a"},
		{"trailing escape", "a\x1b", "a"},
		{"invalid utf8 replaced", "a\xffb", "a�b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ANSIToHTML(tt.in))
		})
	}
}
