// Package editor opens source files at a given line in the developer's
// editor.
package editor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conneroisu/previewd/internal/errors"
	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/validation"
)

// Launcher opens file at line.
type Launcher interface {
	Launch(ctx context.Context, file string, line int) error
}

// CommandLauncher starts an editor process and does not wait for it.
type CommandLauncher struct {
	command []string
	logger  logging.Logger
	start   func(*exec.Cmd) error
}

// NewCommandLauncher uses command, or $VISUAL / $EDITOR when command is empty.
func NewCommandLauncher(command string, logger logging.Logger) *CommandLauncher {
	if strings.TrimSpace(command) == "" {
		command = os.Getenv("VISUAL")
	}
	if strings.TrimSpace(command) == "" {
		command = os.Getenv("EDITOR")
	}

	return &CommandLauncher{
		command: strings.Fields(command),
		logger:  logger.WithComponent("editor"),
		start:   startDetached,
	}
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Launch implements Launcher.
func (l *CommandLauncher) Launch(ctx context.Context, file string, line int) error {
	if len(l.command) == 0 {
		return errors.NewConfigError(errors.ErrCodeEditorLaunch, "no editor configured; set editor.command or $EDITOR")
	}
	if err := validation.ValidateEditorFile(file); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidPath, err.Error()).WithContext("file", file)
	}

	args := append(append([]string(nil), l.command[1:]...), Args(l.command[0], file, line)...)
	// Editor processes outlive the request that asked for them.
	cmd := exec.Command(l.command[0], args...) //nolint:gosec // command comes from local configuration
	if err := l.start(cmd); err != nil {
		return errors.NewIOError(errors.ErrCodeEditorLaunch, "starting editor", err).
			WithContext("editor", l.command[0])
	}

	l.logger.Info(ctx, "opened file in editor", "file", file, "line", line, "editor", l.command[0])
	return nil
}

// Args returns the arguments that make editor open file at line. Unknown
// editors get the file alone.
func Args(editor, file string, line int) []string {
	if line < 1 {
		return []string{file}
	}
	l := strconv.Itoa(line)

	switch strings.TrimSuffix(filepath.Base(editor), ".exe") {
	case "code", "code-insiders", "codium", "cursor":
		return []string{"-g", file + ":" + l}
	case "vim", "vi", "nvim", "emacs", "emacsclient", "nano", "micro", "kak", "hx":
		return []string{"+" + l, file}
	case "subl", "sublime_text", "atom", "zed":
		return []string{file + ":" + l}
	case "idea", "webstorm", "phpstorm", "goland", "pycharm":
		return []string{"--line", l, file}
	case "mate":
		return []string{"-l", l, file}
	default:
		return []string{file}
	}
}
