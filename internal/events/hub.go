package events

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// clientBuffer is the number of pending messages per client before new ones are dropped.
const clientBuffer = 32

// OriginAllowed reports whether a browser request may act on this server:
// no Origin header (not a browser), the page was served by this host, or the
// origin is listed in allowed.
func OriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Hub broadcasts events to WebSocket clients. New clients receive the most
// recent state and hands events first so they can render without waiting.
type Hub struct {
	upgrader websocket.Upgrader
	origins  []string

	mu        sync.RWMutex
	clients   map[*client]bool
	lastState []byte
	lastHands []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	h := &Hub{
		clients: make(map[*client]bool),
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return OriginAllowed(r, h.origins)
	}
	return h
}

// AllowOrigins lets pages from origins connect in addition to pages served
// by this host.
func (h *Hub) AllowOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.origins = append([]string(nil), origins...)
}

// Publish encodes e and queues it for every connected client.
// Clients whose queue is full miss the event.
func (h *Hub) Publish(e Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Printf("encode event: %v", err)
		return
	}

	h.mu.Lock()
	switch e.Type {
	case TypeState:
		h.lastState = msg
	case TypeHands:
		h.lastHands = msg
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	for _, msg := range [][]byte{h.lastState, h.lastHands} {
		if msg != nil {
			c.send <- msg
		}
	}
	h.clients[c] = true
	h.mu.Unlock()

	done := make(chan struct{})
	go c.writeLoop(done)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(done)
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writeLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
