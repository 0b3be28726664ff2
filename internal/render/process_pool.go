package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/conneroisu/previewd/internal/logging"
)

// ProcessPool renders pages by running the configured renderer command, one
// process per job, with at most `workers` processes alive at once.
//
// Protocol: the command is started with the entry path appended to its
// arguments, receives {"paths": [...]} on stdin and must print either
// {"html": [...]} or {"error": {"message", "stack", "type"}} on stdout.
type ProcessPool struct {
	command []string
	dir     string
	slots   chan struct{}
	buffers sync.Pool
	logger  logging.Logger
}

type workerRequest struct {
	Paths []string `json:"paths"`
}

type workerResponse struct {
	HTML  []string `json:"html"`
	Error *Failure `json:"error,omitempty"`
}

// NewProcessPool creates a pool running command in dir.
func NewProcessPool(command []string, workers int, dir string, logger logging.Logger) (*ProcessPool, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("renderer command is empty")
	}
	if workers < 1 {
		workers = 1
	}

	return &ProcessPool{
		command: append([]string(nil), command...),
		dir:     dir,
		slots:   make(chan struct{}, workers),
		buffers: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 16*1024))
			},
		},
		logger: logger.WithComponent("render_pool"),
	}, nil
}

// RenderHTML implements Pool.
func (p *ProcessPool) RenderHTML(ctx context.Context, job Job) ([]string, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()

	jobID := uuid.NewString()
	logger := p.logger.With("job_id", jobID, "paths", len(job.Paths))

	payload, err := json.Marshal(workerRequest{Paths: job.Paths})
	if err != nil {
		return nil, fmt.Errorf("encoding render job: %w", err)
	}

	stdout := p.getBuffer()
	defer p.putBuffer(stdout)
	stderr := p.getBuffer()
	defer p.putBuffer(stderr)

	args := append(append([]string(nil), p.command[1:]...), job.EntryPath)
	cmd := exec.CommandContext(ctx, p.command[0], args...)
	cmd.Dir = p.dir
	cmd.Env = append(os.Environ(), envPairs(job.Env)...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug(ctx, "starting render job", "entry", job.EntryPath)
	runErr := cmd.Run()

	var resp workerResponse
	decodeErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp)

	switch {
	case decodeErr == nil && resp.Error != nil:
		if resp.Error.Kind == "" {
			resp.Error.Kind = "Error"
		}
		return nil, resp.Error
	case runErr != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Failure{
			Message: workerOutput(stderr.String(), runErr),
			Stack:   stderr.String(),
			Kind:    "WorkerError",
		}
	case decodeErr != nil:
		return nil, &Failure{
			Message: fmt.Sprintf("decoding renderer output: %v", decodeErr),
			Kind:    "WorkerError",
		}
	}

	logger.Debug(ctx, "render job finished", "results", len(resp.HTML))
	return resp.HTML, nil
}

func (p *ProcessPool) getBuffer() *bytes.Buffer {
	buf := p.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *ProcessPool) putBuffer(buf *bytes.Buffer) {
	// Oversized buffers are left to the GC.
	if buf.Cap() > 1<<20 {
		return
	}
	p.buffers.Put(buf)
}

func envPairs(env []EnvVar) []string {
	pairs := make([]string, 0, len(env))
	for _, e := range env {
		pairs = append(pairs, e.Key+"="+e.Value)
	}
	return pairs
}

// workerOutput picks the last non-empty stderr line as the failure message.
func workerOutput(stderr string, runErr error) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return fmt.Sprintf("renderer exited: %v", runErr)
}
