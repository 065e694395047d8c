package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyaneshwarpardhi/opscore/internal/bus"
	"github.com/gyaneshwarpardhi/opscore/internal/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 512
	sendBuffer     = 256
	snapshotSize   = 20
)

// Frame is one message sent to stream clients.
type Frame struct {
	Type      string    `json:"type"` // "snapshot" or "event"
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// RecentSource supplies the snapshot a new client receives.
type RecentSource interface {
	RecentEvents(limit int) []event.Event
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans bus events out to websocket clients. Slow clients are dropped
// rather than allowed to hold up the bus.
type Hub struct {
	recent     RecentSource
	log        *slog.Logger
	upgrader   websocket.Upgrader
	broadcast  chan []byte
	register   chan *streamClient
	unregister chan *streamClient
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*streamClient]bool
}

// NewHub creates a Hub. Call Run to start delivering.
func NewHub(recent RecentSource, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		recent:     recent,
		log:        log.With("component", "stream"),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		done:       make(chan struct{}),
		clients:    make(map[*streamClient]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

var loopbackHosts = map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true}

// checkOrigin accepts non-browser clients, the serving host itself and
// loopback origins. Hostnames are compared exactly.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		host := strings.ToLower(u.Hostname())
		served := strings.ToLower((&url.URL{Host: r.Host}).Hostname())
		if loopbackHosts[host] || (host != "" && host == served) {
			return true
		}
	}
	h.log.Warn("rejected stream from disallowed origin", "origin", origin)
	return false
}

// Attach subscribes the hub to every event on b.
func (h *Hub) Attach(b interface {
	SubscribeAll(bus.Handler) bus.Unsubscribe
}) bus.Unsubscribe {
	return b.SubscribeAll(func(_ context.Context, ev event.Event) error {
		h.Broadcast(ev)
		return nil
	})
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.sendSnapshot(c)
			h.log.Debug("stream client connected", "remote", c.conn.RemoteAddr().String())

		case c := <-h.unregister:
			h.drop(c)

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					close(c.send)
					delete(h.clients, c)
					h.log.Warn("stream client too slow, dropped")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) drop(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
		h.log.Debug("stream client disconnected")
	}
}

// Broadcast queues ev for every connected client. It never blocks; events
// are dropped when the hub is saturated.
func (h *Hub) Broadcast(ev event.Event) {
	data, err := json.Marshal(Frame{Type: "event", Timestamp: time.Now().UTC(), Data: ev})
	if err != nil {
		h.log.Warn("encode stream frame", "event_id", ev.ID, "err", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", "err", err)
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, sendBuffer), hub: h}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (h *Hub) sendSnapshot(c *streamClient) {
	events := []event.Event{}
	if h.recent != nil {
		events = h.recent.RecentEvents(snapshotSize)
	}
	data, err := json.Marshal(Frame{Type: "snapshot", Timestamp: time.Now().UTC(), Data: events})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump discards client messages and notices disconnects.
func (c *streamClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
