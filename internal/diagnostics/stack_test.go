package diagnostics

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStackDecoder_Decode(t *testing.T) {
	tests := []struct {
		name    string
		decoder StackDecoder
		stack   string
		want    Position
	}{
		{
			name:  "node call site",
			stack: "ReferenceError: x is not defined\n    at Page (/lib/about.js:12:5)\n    at render (/lib/render.js:3:1)",
			want:  Position{Filename: "/lib/about.js", Line: 12, Column: 5},
		},
		{
			name:  "last call site segment wins",
			stack: "    at Object.<anonymous> (eval) (/src/pages/index.js:7:19)",
			want:  Position{Filename: "/src/pages/index.js", Line: 7, Column: 19},
		},
		{
			name:  "parentheses in the message are skipped",
			stack: "TypeError: Cannot read properties of undefined (reading 'title')\n    at About (/lib/about.js:12:5)",
			want:  Position{Filename: "/lib/about.js", Line: 12, Column: 5},
		},
		{
			name:  "webpack scheme keeps the last three tokens",
			stack: "    at Page (webpack-internal:///./src/pages/about.js:40:2)",
			want:  Position{Filename: "///./src/pages/about.js", Line: 40, Column: 2},
		},
		{
			name:  "non numeric line and column",
			stack: "at x (/a.js:foo:bar)",
			want:  Position{Filename: "/a.js", Line: 0, Column: 0},
		},
		{
			name:  "no call site",
			stack: "Error: boom\n    at /lib/about.js:12:5",
			want:  Position{},
		},
		{
			name:  "too few tokens",
			stack: "at x (native)",
			want:  Position{},
		},
		{
			name:  "empty filename",
			stack: "at x (:1:2)",
			want:  Position{},
		},
		{
			name:  "empty input",
			stack: "",
			want:  Position{},
		},
		{
			name:    "strips wrapper segments and joins root",
			decoder: StackDecoder{Root: "/site", StripSegments: 2},
			stack:   "at Page (/lib/about.js:12:5)",
			want:    Position{Filename: filepath.Join("/site", "about.js"), Line: 12, Column: 5},
		},
		{
			name:    "stripping everything keeps the base name",
			decoder: StackDecoder{StripSegments: 10},
			stack:   "at Page (/public/render-page.js:1:1)",
			want:    Position{Filename: "render-page.js", Line: 1, Column: 1},
		},
		{
			name:  "windows line endings",
			stack: "Error\r\n    at Page (/lib/about.js:3:4)\r\n",
			want:  Position{Filename: "/lib/about.js", Line: 3, Column: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.decoder.Decode(tt.stack))
		})
	}
}

func TestPosition_IsZero(t *testing.T) {
	assert.True(t, Position{}.IsZero())
	assert.False(t, Position{Line: 1}.IsZero())
}
