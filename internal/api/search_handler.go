package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// SearchHandler searches the cached messages of a session.
type SearchHandler struct {
	store *store.Store
}

// NewSearchHandler creates a new SearchHandler instance.
func NewSearchHandler(store *store.Store) *SearchHandler {
	return &SearchHandler{store: store}
}

// Search matches the query against subject and participants across every
// cached folder, newest first.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	live, ok := GetLiveSession(r.Context(), w)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	limit := ParseLimitParam(r, defaultSearchLimit, maxSearchLimit)

	messages, err := h.store.SearchMessages(r.Context(), live.SessionID, query, limit)
	if err != nil {
		log.Printf("SearchHandler: Search failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	WriteJSONResponse(w, map[string]any{"messages": messages})
}
