package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/toolchest/favikit/internal/favicon"
)

const wsWriteWait = 5 * time.Second

// WSMessage is one frame on the progress stream.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Message types.
const (
	MsgProgress      = "progress"
	MsgBatchProgress = "batch_progress"
	MsgCompleted     = "completed"
)

// RunProgress tags a single-image snapshot with its run.
type RunProgress struct {
	RunID    string           `json:"runId"`
	Source   string           `json:"source"`
	Progress favicon.Progress `json:"progress"`
}

// Hub fans progress snapshots out to every connected websocket client.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
}

// NewHub creates an empty hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and holds the connection until the
// client goes away. Incoming frames are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.log.Debug("WebSocket client connected")

	defer func() {
		h.remove(conn)
		h.log.Debug("WebSocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends one message to every client. Writes are serialized
// since a connection supports a single concurrent writer.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	msg, err := json.Marshal(WSMessage{Type: msgType, Data: data})
	if err != nil {
		h.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warnf("Failed to write WebSocket message: %v", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
