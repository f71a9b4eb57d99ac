package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/mokrane09/amefis-mail-gateway/internal/store"
	imapsync "github.com/mokrane09/amefis-mail-gateway/internal/sync"
)

// SyncHandler triggers on-demand convergence passes.
type SyncHandler struct {
	store  *store.Store
	engine *imapsync.Engine
}

// NewSyncHandler creates a new SyncHandler instance.
func NewSyncHandler(store *store.Store, engine *imapsync.Engine) *SyncHandler {
	return &SyncHandler{store: store, engine: engine}
}

// Sync converges one folder (folder_id) or the whole session with the
// server immediately. A folder already being synced yields 409.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	live, ok := GetLiveSession(ctx, w)
	if !ok {
		return
	}

	folderID := r.URL.Query().Get("folder_id")
	if folderID == "" {
		if err := h.engine.SyncSession(ctx, live); err != nil {
			log.Printf("SyncHandler: Session sync failed: %v", err)
			http.Error(w, "Sync failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	folder, err := h.store.GetFolder(ctx, live.SessionID, folderID)
	if err != nil {
		if errors.Is(err, store.ErrFolderNotFound) {
			http.Error(w, "Folder not found", http.StatusNotFound)
			return
		}
		log.Printf("SyncHandler: Failed to load folder %s: %v", folderID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	err = h.engine.SyncFolder(ctx, live, folder)
	if errors.Is(err, imapsync.ErrSyncInProgress) {
		http.Error(w, "Sync already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("SyncHandler: Sync of %s failed: %v", folder.Path, err)
		http.Error(w, "Sync failed", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
