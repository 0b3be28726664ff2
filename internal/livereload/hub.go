// Package livereload tells connected browsers to reload when the site's
// public output changes or a data refresh completes.
//
// The channel is a websocket endpoint mounted on the server's router. Each
// message is a small JSON object; browsers only act on {"type":"reload"}.
package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/previewd/internal/logging"
	"github.com/conneroisu/previewd/internal/watcher"
)

// Path is where the websocket endpoint is mounted.
const Path = "/__livereload"

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 16
)

// Message is sent to every connected browser.
type Message struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// ReloadMessage asks browsers to reload the page.
func ReloadMessage(path string) Message {
	return Message{Type: "reload", Path: path}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to connected browsers.
type Hub struct {
	dir            string
	originPatterns []string
	logger         logging.Logger

	clients      map[*client]struct{}
	clientsMutex sync.RWMutex
	register     chan *client
	unregister   chan *client
	broadcast    chan []byte
}

// New creates a hub serving the directory root dir and mounts its endpoint
// on router. originPatterns are extra allowed browser origins (host
// patterns, see websocket.AcceptOptions); same-host origins are always
// allowed.
func New(router chi.Router, dir string, originPatterns []string, logger logging.Logger) *Hub {
	h := &Hub{
		dir:            dir,
		originPatterns: append([]string{"localhost:*", "127.0.0.1:*"}, originPatterns...),
		logger:         logger.WithComponent("livereload"),
		clients:        make(map[*client]struct{}),
		register:       make(chan *client),
		unregister:     make(chan *client),
		broadcast:      make(chan []byte, 16),
	}
	router.Get(Path, h.ServeHTTP)
	return h
}

// Broadcast queues msg for every connected browser. It never blocks; a
// message is dropped when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Debug(context.Background(), "live reload queue full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Run delivers messages until ctx is cancelled. When the hub's directory
// exists it is watched and any change triggers a reload.
func (h *Hub) Run(ctx context.Context) error {
	if info, err := os.Stat(h.dir); err == nil && info.IsDir() {
		fw, err := h.watch(ctx)
		if err != nil {
			h.logger.Warn(ctx, err, "not watching public directory", "dir", h.dir)
		} else {
			defer fw.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case c := <-h.register:
			h.clientsMutex.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "browser connected", "clients", count)

		case c := <-h.unregister:
			h.remove(c)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, c)
				}
			}
			h.clientsMutex.RUnlock()

			for _, c := range slow {
				h.remove(c)
			}
		}
	}
}

func (h *Hub) watch(ctx context.Context) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(100*time.Millisecond, h.logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddFilter(watcher.NoHotUpdateFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		h.Broadcast(ReloadMessage(events[0].Path))
		return nil
	})
	if err := fw.AddRecursive(h.dir); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	fw.Start(ctx)
	return fw, nil
}

func (h *Hub) remove(c *client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and serves the connection until the
// browser goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.writePump(ctx, c)

	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close(websocket.StatusGoingAway, "")
		return
	}

	h.readPump(ctx, c)

	select {
	case h.unregister <- c:
	case <-time.After(time.Second):
	}
}

// readPump discards browser messages; it returns when the connection closes.
func (h *Hub) readPump(ctx context.Context, c *client) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.logger.Debug(ctx, "websocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
