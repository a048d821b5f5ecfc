// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmxstream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

const (
	sendQueueSize = 64
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
)

type client struct {
	conn     *websocket.Conn
	encoding Encoding
	send     chan []byte
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub fans engine events out to WebSocket subscribers. It implements
// dmx.Handler and http.Handler. Frame events are throttled per hub; sync and
// monitored events are always sent. Slow subscribers lose messages instead of
// stalling the engine.
type Hub struct {
	log      *zap.Logger
	frames   *rate.Limiter
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	dropped uint64
}

var _ dmx.Handler = (*Hub)(nil)

// NewHub creates a hub sending at most framesPerSec frame events per second.
// framesPerSec <= 0 sends every frame.
func NewHub(log *zap.Logger, framesPerSec float64) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if framesPerSec > 0 {
		limit = rate.Limit(framesPerSec)
	}
	return &Hub{
		log:    log,
		frames: rate.NewLimiter(limit, 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// HandleEvent implements dmx.Handler
func (h *Hub) HandleEvent(e dmx.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}
	if e.Kind == dmx.EventFrame && !h.frames.Allow() {
		return
	}

	var encoded [2][]byte
	for c := range h.clients {
		msg := encoded[c.encoding]
		if msg == nil {
			var err error
			if c.encoding == EncodingCBOR {
				msg, err = EncodeCBOR(e)
			} else {
				msg, err = EncodeJSON(e)
			}
			if err != nil {
				h.log.Error("failed to encode stream message", zap.Error(err))
				return
			}
			encoded[c.encoding] = msg
		}

		select {
		case c.send <- msg:
		default:
			h.dropped++
		}
	}
}

// ServeHTTP upgrades the request and subscribes it. The encoding query
// parameter selects json (default) or cbor.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	enc, err := ParseEncoding(r.URL.Query().Get("encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, encoding: enc, send: make(chan []byte, sendQueueSize)}
	if !h.add(c) {
		conn.Close()
		return
	}
	h.log.Info("stream subscriber connected",
		zap.String("remote", r.RemoteAddr), zap.Stringer("encoding", enc))

	go h.writeLoop(c)
	h.readLoop(c)
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of messages not queued to slow subscribers
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close disconnects every subscriber and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// readLoop discards client messages and unsubscribes on disconnect
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	msgType := websocket.TextMessage
	if c.encoding == EncodingCBOR {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(msgType, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
