// Package events fans out sync notifications to the subscribers of each
// session, regardless of transport.
package events

import (
	"log"
	"sync"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

// Event types delivered to subscribers.
const (
	// EventNew signals newly cached messages in a folder.
	EventNew = "new"
	// EventFlags signals a flag change on a cached message.
	EventFlags = "flags"
	// EventExpunge signals a server-side message removal.
	EventExpunge = "expunge"
)

// Event is one notification. Data is the type-specific payload.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewPayload is the payload of an EventNew event.
type NewPayload struct {
	FolderID   string `json:"folder_id"`
	FolderPath string `json:"folder_path"`
	Count      int    `json:"count"`
}

// FlagsPayload is the payload of an EventFlags event.
type FlagsPayload struct {
	MessageID string         `json:"message_id"`
	Flags     models.FlagSet `json:"flags"`
}

// Sink is one subscriber connection. Write must be safe to call from any
// goroutine; a Write error marks the sink dead and the hub drops it.
type Sink interface {
	Write(event Event) error
	Close() error
}

// Hub fans events out per session. A session with no subscribers drops its
// events silently; delivery is best effort and a failing sink is removed on
// its first write error.
type Hub struct {
	mu    sync.RWMutex
	sinks map[string]map[Sink]struct{} // session id -> subscriber set
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{sinks: make(map[string]map[Sink]struct{})}
}

// Register adds a subscriber to a session's fan-out set.
func (h *Hub) Register(sessionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sinks[sessionID]
	if !ok {
		set = make(map[Sink]struct{})
		h.sinks[sessionID] = set
	}
	set[sink] = struct{}{}
}

// Unregister removes a subscriber. Unknown sinks are ignored, so teardown
// paths may call it more than once.
func (h *Hub) Unregister(sessionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, sink)
}

func (h *Hub) removeLocked(sessionID string, sink Sink) {
	set, ok := h.sinks[sessionID]
	if !ok {
		return
	}
	if _, ok := set[sink]; !ok {
		return
	}
	delete(set, sink)
	if len(set) == 0 {
		delete(h.sinks, sessionID)
	}
}

// Broadcast delivers one event to every subscriber of a session. Sinks that
// fail to accept the write are closed and dropped.
func (h *Hub) Broadcast(sessionID string, event Event) {
	h.mu.RLock()
	set := h.sinks[sessionID]
	sinks := make([]Sink, 0, len(set))
	for sink := range set {
		sinks = append(sinks, sink)
	}
	h.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Write(event); err != nil {
			log.Printf("events: dropping subscriber of session %s: %v", sessionID, err)
			_ = sink.Close()
			h.mu.Lock()
			h.removeLocked(sessionID, sink)
			h.mu.Unlock()
		}
	}
}

// CloseSession closes and drops every subscriber of a session. Used when the
// session itself is torn down.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	set := h.sinks[sessionID]
	delete(h.sinks, sessionID)
	h.mu.Unlock()

	for sink := range set {
		_ = sink.Close()
	}
}

// ActiveSubscribers returns the number of subscribers of a session.
func (h *Hub) ActiveSubscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks[sessionID])
}
