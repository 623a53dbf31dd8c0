// Package ws exposes session commands and live updates over WebSocket.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/magefree/tabletop-server-go/internal/config"
	"github.com/magefree/tabletop-server-go/internal/coordinator"
	"go.uber.org/zap"
)

// Sessions is the part of the coordinator the hub drives.
type Sessions interface {
	Execute(ctx context.Context, id string, cmd coordinator.Command) (coordinator.Result, error)
	Subscribe(ctx context.Context, id string, observer coordinator.Observer) (int, error)
	Unsubscribe(handle int)
}

const (
	maxMessageSize    = 64 << 10
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultSendBuffer = 64
)

// Hub tracks connected clients. Each client may observe any number of
// sessions and issue commands against them.
type Hub struct {
	sessions Sessions
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	nextID  atomic.Uint64
}

// NewHub builds a hub. An empty origin allow-list accepts every origin.
func NewHub(sessions Sessions, cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin != "" {
			allowed[origin] = true
		}
	}

	h := &Hub{
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
		},
	}
	return h
}

// ServeHTTP upgrades the request and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:     fmt.Sprintf("ws-%d", h.nextID.Add(1)),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("client", client.id), zap.String("remote", r.RemoteAddr))

	go client.writePump()
	go client.readPump()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.logger.Info("client disconnected", zap.String("client", c.id))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
