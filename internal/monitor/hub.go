// Package monitor fans submission events out to contest administrators over
// websockets.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"codearena/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config tunes connection handling.
type Config struct {
	SendBuffer   int           `yaml:"sendBuffer"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PingInterval time.Duration `yaml:"pingInterval"`
	PongTimeout  time.Duration `yaml:"pongTimeout"`
	// AllowedOrigins empty accepts any origin.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= c.PingInterval {
		c.PongTimeout = c.PingInterval * 2
	}
	return c
}

type client struct {
	contestID int64
	userID    int64
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub tracks admin connections per contest.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[int64]map[*client]struct{}
	closed  bool
}

func NewHub(cfg Config) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		clients: make(map[int64]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// Serve upgrades the request and streams events for contestID until the
// peer disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, contestID, userID int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		contestID: contestID,
		userID:    userID,
		conn:      conn,
		send:      make(chan []byte, h.cfg.SendBuffer),
	}
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return conn.Close()
	}
	logger.Info(r.Context(), "monitor connected", zap.Int64("contest_id", contestID), zap.Int64("user_id", userID))

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.contestID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.contestID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.contestID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.contestID)
			}
		}
	}
	h.mu.Unlock()
	c.close()
}

// Publish queues payload for every watcher of contestID. Watchers whose
// buffer is full are disconnected.
func (h *Hub) Publish(contestID int64, payload []byte) int {
	h.mu.RLock()
	var slow []*client
	delivered := 0
	for c := range h.clients[contestID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Warn(context.Background(), "monitor client too slow, dropping",
			zap.Int64("contest_id", c.contestID),
			zap.Int64("user_id", c.userID),
		)
		h.unregister(c)
	}
	return delivered
}

// Watchers returns the number of connections for contestID.
func (h *Hub) Watchers(contestID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[contestID])
}

// Close disconnects everyone and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[int64]map[*client]struct{})
	h.mu.Unlock()
	for _, c := range all {
		c.close()
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn(context.Background(), "monitor read failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
