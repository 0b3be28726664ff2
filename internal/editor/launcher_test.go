package editor

import (
	"context"
	stderrors "errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/previewd/internal/errors"
	"github.com/conneroisu/previewd/internal/logging"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		editor string
		line   int
		want   []string
	}{
		{"code", 12, []string{"-g", "/src/a.js:12"}},
		{"/usr/local/bin/nvim", 3, []string{"+3", "/src/a.js"}},
		{"subl", 7, []string{"/src/a.js:7"}},
		{"webstorm", 9, []string{"--line", "9", "/src/a.js"}},
		{"mate", 2, []string{"-l", "2", "/src/a.js"}},
		{"ed", 5, []string{"/src/a.js"}},
		{"code", 0, []string{"/src/a.js"}},
	}

	for _, tt := range tests {
		t.Run(tt.editor, func(t *testing.T) {
			assert.Equal(t, tt.want, Args(tt.editor, "/src/a.js", tt.line))
		})
	}
}

func TestCommandLauncher_Launch(t *testing.T) {
	l := NewCommandLauncher("code --reuse-window", logging.NewNopLogger())

	var started *exec.Cmd
	l.start = func(cmd *exec.Cmd) error {
		started = cmd
		return nil
	}

	require.NoError(t, l.Launch(context.Background(), "/src/about.js", 12))
	require.NotNil(t, started)
	assert.Equal(t, []string{"code", "--reuse-window", "-g", "/src/about.js:12"}, started.Args)
}

func TestCommandLauncher_Errors(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "")

	err := NewCommandLauncher("", logging.NewNopLogger()).Launch(context.Background(), "/a.js", 1)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	l := NewCommandLauncher("vim", logging.NewNopLogger())
	l.start = func(*exec.Cmd) error { return stderrors.New("no such file") }

	err = l.Launch(context.Background(), "-rf", 1)
	assert.True(t, errors.IsValidationError(err))

	err = l.Launch(context.Background(), "/a.js", 1)
	assert.True(t, errors.HasCode(err, errors.ErrCodeEditorLaunch))
}

func TestNewCommandLauncher_FallsBackToEnv(t *testing.T) {
	t.Setenv("VISUAL", "")
	t.Setenv("EDITOR", "nano -w")

	l := NewCommandLauncher("", logging.NewNopLogger())
	assert.Equal(t, []string{"nano", "-w"}, l.command)
}
