package pipeline

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/render"
)

var testLogger = logging.NewNopLogger()

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// fixedHandler claims requests for one path and records how often it ran.
type fixedHandler struct {
	name  string
	path  string
	calls int
	mu    sync.Mutex
}

func (h *fixedHandler) Name() string { return h.name }

func (h *fixedHandler) TryHandle(w http.ResponseWriter, r *http.Request) Outcome {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if r.URL.Path != h.path {
		return PassThrough
	}
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte(h.name))
	return Claimed
}

type pageSet map[string]bool

func (p pageSet) Has(path string) bool { return p[path] }

type stubRenderer struct {
	markup string
	err    error
	mu     sync.Mutex
	reqs   []render.Request
}

func (s *stubRenderer) Render(_ context.Context, req render.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.markup, s.err
}

type spyRefresher struct {
	calls chan []byte
}

func newSpyRefresher() *spyRefresher {
	return &spyRefresher{calls: make(chan []byte, 8)}
}

func (s *spyRefresher) RequestRefresh(_ context.Context, payload []byte) error {
	s.calls <- payload
	return nil
}

func timeout() <-chan time.Time { return time.After(2 * time.Second) }

// fired reports whether a refresh arrived within a short window.
func (s *spyRefresher) fired() bool {
	select {
	case <-s.calls:
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

type spyLauncher struct {
	mu    sync.Mutex
	files []string
	lines []int
	err   error
}

func (s *spyLauncher) Launch(_ context.Context, file string, line int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, file)
	s.lines = append(s.lines, line)
	return s.err
}

type dispatchRecord struct {
	handler string
	status  int
}

type spyObserver struct {
	mu      sync.Mutex
	records []dispatchRecord
}

func (s *spyObserver) ObserveDispatch(handler string, status int, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, dispatchRecord{handler, status})
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
}
