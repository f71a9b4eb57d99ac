package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/events"
)

// sseHeartbeatInterval keeps intermediaries from timing out an idle stream.
const sseHeartbeatInterval = 20 * time.Second

// EventsHandler streams sync events over server-sent events.
type EventsHandler struct {
	hub *events.Hub
}

// NewEventsHandler creates a new EventsHandler instance.
func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// sseSink serializes events onto one SSE response. Writes after Close are
// rejected so the hub drops the sink.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	done    chan struct{}
}

func (s *sseSink) Write(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sse stream closed")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sse stream closed")
	}
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Stream subscribes the caller to the session's event feed. The response
// stays open until the client disconnects or the session is torn down.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	live, ok := GetLiveSession(r.Context(), w)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher, done: make(chan struct{})}
	h.hub.Register(live.SessionID, sink)
	defer h.hub.Unregister(live.SessionID, sink)

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			_ = sink.Close()
			return
		case <-sink.done:
			return
		case <-ticker.C:
			if err := sink.heartbeat(); err != nil {
				_ = sink.Close()
				return
			}
		}
	}
}
