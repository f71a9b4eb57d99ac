package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/mokrane09/amefis-mail-gateway/internal/files"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
)

// AttachmentsHandler serves stored attachment bytes.
type AttachmentsHandler struct {
	store *store.Store
	files *files.Store
}

// NewAttachmentsHandler creates a new AttachmentsHandler instance.
func NewAttachmentsHandler(store *store.Store, files *files.Store) *AttachmentsHandler {
	return &AttachmentsHandler{store: store, files: files}
}

// GetAttachment streams one attachment. inline=1 serves it for in-page
// display (inline images); the default forces a download.
func (h *AttachmentsHandler) GetAttachment(w http.ResponseWriter, r *http.Request, attachmentID string) {
	ctx := r.Context()
	live, ok := GetLiveSession(ctx, w)
	if !ok {
		return
	}

	att, err := h.store.GetAttachment(ctx, live.SessionID, attachmentID)
	if err != nil {
		if errors.Is(err, store.ErrAttachmentNotFound) {
			http.Error(w, "Attachment not found", http.StatusNotFound)
			return
		}
		log.Printf("AttachmentsHandler: Failed to load attachment %s: %v", attachmentID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	path, err := h.files.AbsolutePath(att.Path)
	if err != nil {
		log.Printf("AttachmentsHandler: Rejected attachment path for %s: %v", attachmentID, err)
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}

	disposition := "attachment"
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, att.Filename))

	http.ServeFile(w, r, path)
}
