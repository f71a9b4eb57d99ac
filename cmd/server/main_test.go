package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mokrane09/amefis-mail-gateway/internal/config"
	"github.com/mokrane09/amefis-mail-gateway/internal/events"
	"github.com/mokrane09/amefis-mail-gateway/internal/files"
	"github.com/mokrane09/amefis-mail-gateway/internal/session"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
	imapsync "github.com/mokrane09/amefis-mail-gateway/internal/sync"
)

// newTestServer wires the handler with an unconnected store. Routes that
// reject the request before touching the database are still exercisable.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	st := store.New(nil)
	registry := session.NewRegistry()
	hub := events.NewHub()
	fileStore := &files.Store{}
	engine := imapsync.NewEngine(st, registry, hub, nil, fileStore, imapsync.Options{})
	return NewServer(cfg, st, registry, hub, engine, fileStore)
}

func TestHealthRoute(t *testing.T) {
	handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Expected ok status in body, got %s", rec.Body.String())
	}
}

func TestMessageRoutesRequireAuth(t *testing.T) {
	handler := newTestServer(t)

	// Every message subroute sits behind the session middleware; an
	// unauthenticated request must hit the route and get a 401, not a 404.
	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"flags patch", http.MethodPatch, "/api/v1/messages/abc/flags"},
		{"move", http.MethodPost, "/api/v1/messages/abc/move"},
		{"get message", http.MethodGet, "/api/v1/messages/abc"},
		{"delete message", http.MethodDelete, "/api/v1/messages/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401 for %s %s, got %d", tt.method, tt.path, rec.Code)
			}
		})
	}
}
