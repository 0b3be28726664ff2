package livereload

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/previewd/internal/logging"
)

func startHub(t *testing.T, dir string) (*Hub, string) {
	t.Helper()

	router := chi.NewRouter()
	hub := New(router, dir, nil, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + Path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub, url := startHub(t, filepath.Join(t.TempDir(), "missing"))

	first := dial(t, url)
	second := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(ReloadMessage("/about"))

	assert.Equal(t, Message{Type: "reload", Path: "/about"}, readMessage(t, first))
	assert.Equal(t, Message{Type: "reload", Path: "/about"}, readMessage(t, second))
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, t.TempDir())

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_WatchesDirectory(t *testing.T) {
	dir := t.TempDir()
	hub, url := startHub(t, dir)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// The watcher starts inside Run; give it a moment before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))

	msg := readMessage(t, conn)
	assert.Equal(t, "reload", msg.Type)
	assert.Equal(t, "app.js", filepath.Base(msg.Path))
}

func TestClientScript(t *testing.T) {
	assert.Contains(t, ClientScript, Path)
	assert.True(t, strings.HasPrefix(ClientScript, "<script>"))
}
