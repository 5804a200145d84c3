package notification

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/schema"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 64
)

// Hub is the single-endpoint inbound/outbound WebSocket surface (spec
// §4.4/§4.6): text-frame JSON notifications in, dispatched events
// broadcast best-effort to every connected client.
type Hub struct {
	protocol *Protocol
	logger   corekit.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// AllowedOrigins, when non-empty, restricts which Origin header values
// may upgrade; empty allows any origin (development default).
func NewHub(protocol *Protocol, logger corekit.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	h := &Hub{
		protocol: protocol,
		logger:   corekit.WithComponent(logger, "notification.websocket"),
		clients:  make(map[*wsClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	h.protocol.SetBroadcaster(h)
	return h
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *Event

	closeOnce sync.Once
}

// ServeHTTP upgrades the connection and starts the read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan *Event, wsSendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// Broadcast fans an event out to every connected client best-effort;
// for a client whose send buffer is full the event is dropped (the
// client stays connected) rather than blocking the broadcaster.
func (h *Hub) Broadcast(evt *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- evt:
		default:
			h.logger.Warn("websocket client send buffer full, dropping event", map[string]interface{}{"event_id": evt.ID})
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.hub.remove(c)
		close(c.send)
		_ = c.conn.Close()
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var payload schema.Notification
		if err := c.conn.ReadJSON(&payload); err != nil {
			return
		}
		evt, err := c.hub.protocol.Accept(context.Background(), &payload)
		if err != nil {
			c.hub.logger.Warn("inbound websocket notification rejected", map[string]interface{}{"error": err.Error()})
			continue
		}
		_ = evt
	}
}
