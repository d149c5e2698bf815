package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const writeTimeout = 10 * time.Second

// Hub bridges Redis pub/sub to WebSocket clients. It pattern-subscribes to
// every broadcast channel under the configured prefix and forwards each
// envelope frame verbatim to all connected clients.
type Hub struct {
	rdb      *redis.Client
	prefix   string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func NewHub(rdb *redis.Client, prefix string) *Hub {
	return &Hub{
		rdb:    rdb,
		prefix: prefix,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Run consumes the Redis subscription until ctx is cancelled. Call it in its
// own goroutine before serving connections.
func (h *Hub) Run(ctx context.Context) {
	sub := h.rdb.PSubscribe(ctx, h.prefix+".*")
	defer sub.Close()

	slog.Info("websocket fanout started", "pattern", h.prefix+".*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("websocket fanout stopping")
			return
		case msg, ok := <-ch:
			if !ok {
				slog.Warn("redis subscription closed")
				return
			}
			h.fanOut([]byte(msg.Payload))
		}
	}
}

func (h *Hub) fanOut(frame []byte) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.write(frame); err != nil {
			slog.Warn("websocket write failed, dropping client", "error", err)
			h.remove(c)
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the peer goes away. Clients are read-drained; the stream is one-way.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	h.add(c)
	slog.Info("websocket client connected", "remote", r.RemoteAddr)

	defer func() {
		h.remove(c)
		_ = conn.Close()
		slog.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
