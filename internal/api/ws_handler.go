package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mokrane09/amefis-mail-gateway/internal/events"
	"github.com/mokrane09/amefis-mail-gateway/internal/session"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
)

// WebSocketHandler streams sync events over a WebSocket, for clients that
// prefer it to server-sent events.
type WebSocketHandler struct {
	registry *session.Registry
	store    *store.Store
	hub      *events.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(registry *session.Registry, store *store.Store, hub *events.Hub) *WebSocketHandler {
	return &WebSocketHandler{registry: registry, store: store, hub: hub}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; the server is expected to sit behind a reverse
		// proxy in a trusted environment.
		return true
	},
}

// wsSink serializes events onto one WebSocket connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Write(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}

// Handle upgrades the connection and registers it with the hub.
// Authentication runs here rather than in middleware because browsers
// cannot set headers on WebSocket connections; the token arrives as a
// query parameter.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := ExtractBearerToken(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	live, err := h.registry.Get(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: Failed to upgrade connection for session %s: %v", live.SessionID, err)
		return
	}

	sink := &wsSink{conn: conn}
	h.hub.Register(live.SessionID, sink)

	go h.readLoop(live.SessionID, sink)
}

// readLoop drains the connection until it closes, then unregisters the sink.
func (h *WebSocketHandler) readLoop(sessionID string, sink *wsSink) {
	for {
		if _, _, err := sink.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.hub.Unregister(sessionID, sink)
	_ = sink.conn.Close()
}
