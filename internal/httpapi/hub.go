// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpapi

import (
	"net/http"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/girishdigge/dreamscapes-sub008/internal/health"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON envelope pushed to every connected operator socket.
type wireEvent struct {
	Kind      string                 `json:"kind"`
	Provider  string                 `json:"provider,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Hub fans a health.Event out to every connected websocket client,
// dropping slow readers rather than blocking the health monitor's
// publishing goroutine.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan wireEvent
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan wireEvent)}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request, logger *log.Entry) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("httpapi: websocket upgrade failed")
		return
	}

	out := make(chan wireEvent, 16)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	go h.drainClientReads(conn)

	for evt := range out {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		data, err := gojson.Marshal(evt)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// drainClientReads discards any client-sent frames; this channel is push-only
// from the server's side, but gorilla/websocket requires reads to keep the
// connection's control frames (ping/close) flowing.
func (h *Hub) drainClientReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcastEvent is a health.EventHandler that fans an event out to every
// connected client, removing and closing any client whose buffer is full.
func (h *Hub) broadcastEvent(evt health.Event) {
	wire := wireEvent{
		Kind:      string(evt.Kind),
		Provider:  evt.Provider,
		Data:      evt.Data,
		Timestamp: evt.Timestamp,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- wire:
		default:
			delete(h.clients, conn)
			conn.Close()
		}
	}
}
