package api

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/mokrane09/amefis-mail-gateway/internal/events"
	"github.com/mokrane09/amefis-mail-gateway/internal/htmlview"
	"github.com/mokrane09/amefis-mail-gateway/internal/models"
	"github.com/mokrane09/amefis-mail-gateway/internal/session"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
	imapsync "github.com/mokrane09/amefis-mail-gateway/internal/sync"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// MessagesHandler serves cached message listings and proxies mutations to
// the IMAP server.
type MessagesHandler struct {
	store  *store.Store
	engine *imapsync.Engine
	hub    *events.Hub
}

// NewMessagesHandler creates a new MessagesHandler instance.
func NewMessagesHandler(store *store.Store, engine *imapsync.Engine, hub *events.Hub) *MessagesHandler {
	return &MessagesHandler{store: store, engine: engine, hub: hub}
}

// suspendWatch pauses the session's IDLE loop while fn holds the
// connection's command pipeline, then resumes it.
func (h *MessagesHandler) suspendWatch(live *session.Live, fn func() error) error {
	if watched := live.StopWatch(); watched != "" {
		defer func() {
			if err := h.engine.StartWatch(live, watched); err != nil {
				log.Printf("MessagesHandler: Failed to resume watch: %v", err)
			}
		}()
	}
	return fn()
}

// GetMessages lists cached messages of one folder, newest first, with
// UID-cursor pagination.
func (h *MessagesHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	live, ok := GetLiveSession(r.Context(), w)
	if !ok {
		return
	}

	folderID := r.URL.Query().Get("folder_id")
	if folderID == "" {
		http.Error(w, "folder_id is required", http.StatusBadRequest)
		return
	}

	limit := ParseLimitParam(r, defaultMessageLimit, maxMessageLimit)
	cursor := ParseInt64Param(r, "cursor")

	messages, err := h.store.MessagesForFolder(r.Context(), live.SessionID, folderID, limit, cursor)
	if err != nil {
		log.Printf("MessagesHandler: Failed to list messages: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	nextCursor := int64(0)
	if len(messages) == limit {
		nextCursor = messages[len(messages)-1].UID
	}

	WriteJSONResponse(w, map[string]any{
		"messages":    messages,
		"next_cursor": nextCursor,
	})
}

type messageDetailResponse struct {
	Message       models.Message      `json:"message"`
	Text          string              `json:"text,omitempty"`
	HTML          string              `json:"html,omitempty"`
	BlockedRemote bool                `json:"blocked_remote"`
	Attachments   []models.Attachment `json:"attachments"`
}

// GetMessage returns one message with its body. The body is fetched from
// the server on demand, parsed, and the HTML sanitized; remote images are
// blocked unless allow_remote=1. Inline cid: references are rewritten to
// attachment URLs.
func (h *MessagesHandler) GetMessage(w http.ResponseWriter, r *http.Request, messageID string) {
	ctx := r.Context()
	live, ok := GetLiveSession(ctx, w)
	if !ok {
		return
	}

	msg, folder, ok := h.lookupMessage(w, r, messageID)
	if !ok {
		return
	}

	var source []byte
	err := h.suspendWatch(live, func() error {
		if _, err := live.Conn.OpenFolder(ctx, folder.Path); err != nil {
			return err
		}
		var err error
		source, err = live.Conn.FetchSource(ctx, msg.UID)
		return err
	})
	if err != nil {
		log.Printf("MessagesHandler: Failed to fetch body for message %s: %v", messageID, err)
		http.Error(w, "Failed to fetch message body", http.StatusBadGateway)
		return
	}

	attachments, err := h.store.AttachmentsForMessage(ctx, msg.ID)
	if err != nil {
		log.Printf("MessagesHandler: Failed to load attachments: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := messageDetailResponse{Message: *msg, Attachments: attachments}
	if attachments == nil {
		resp.Attachments = []models.Attachment{}
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(source))
	if err != nil {
		log.Printf("MessagesHandler: Failed to parse body of message %s: %v", messageID, err)
		WriteJSONResponse(w, resp)
		return
	}

	resp.Text = env.Text
	if env.HTML != "" {
		allowRemote := r.URL.Query().Get("allow_remote") == "1"
		html, blocked := htmlview.Sanitize(env.HTML, allowRemote)
		resp.HTML = htmlview.RewriteCIDImages(html, inlineURLsByCID(attachments))
		resp.BlockedRemote = blocked
	}

	WriteJSONResponse(w, resp)
}

// inlineURLsByCID maps content ids to the URLs serving the stored parts.
func inlineURLsByCID(attachments []models.Attachment) map[string]string {
	urls := make(map[string]string, len(attachments))
	for _, att := range attachments {
		if att.CID != "" {
			urls[att.CID] = "/api/v1/attachments/" + att.ID + "?inline=1"
		}
	}
	return urls
}

type flagsRequest struct {
	Seen     *bool `json:"seen,omitempty"`
	Flagged  *bool `json:"flagged,omitempty"`
	Answered *bool `json:"answered,omitempty"`
	Draft    *bool `json:"draft,omitempty"`
	Deleted  *bool `json:"deleted,omitempty"`
}

// PatchFlags sets the requested flags on the server and mirrors the result
// into the cache. Only flags named in the request change.
func (h *MessagesHandler) PatchFlags(w http.ResponseWriter, r *http.Request, messageID string) {
	ctx := r.Context()
	live, ok := GetLiveSession(ctx, w)
	if !ok {
		return
	}

	var req flagsRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	msg, folder, ok := h.lookupMessage(w, r, messageID)
	if !ok {
		return
	}

	desired := msg.Flags
	var add, remove []string
	applyFlag(&desired.Seen, req.Seen, "\\Seen", &add, &remove)
	applyFlag(&desired.Flagged, req.Flagged, "\\Flagged", &add, &remove)
	applyFlag(&desired.Answered, req.Answered, "\\Answered", &add, &remove)
	applyFlag(&desired.Draft, req.Draft, "\\Draft", &add, &remove)
	applyFlag(&desired.Deleted, req.Deleted, "\\Deleted", &add, &remove)

	if len(add) == 0 && len(remove) == 0 {
		WriteJSONResponse(w, msg)
		return
	}

	err := h.suspendWatch(live, func() error {
		if _, err := live.Conn.OpenFolder(ctx, folder.Path); err != nil {
			return err
		}
		if len(add) > 0 {
			if err := live.Conn.SetFlags(ctx, msg.UID, add, false); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			if err := live.Conn.SetFlags(ctx, msg.UID, remove, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("MessagesHandler: Failed to store flags for message %s: %v", messageID, err)
		http.Error(w, "Failed to update flags", http.StatusBadGateway)
		return
	}

	if err := h.store.UpdateMessageFlags(ctx, msg.ID, desired); err != nil {
		log.Printf("MessagesHandler: Failed to cache flags for message %s: %v", messageID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	msg.Flags = desired

	h.hub.Broadcast(live.SessionID, events.Event{
		Type: events.EventFlags,
		Data: events.FlagsPayload{MessageID: msg.ID, Flags: desired},
	})

	WriteJSONResponse(w, msg)
}

// applyFlag records the add or remove needed to reach the requested value.
func applyFlag(current *bool, requested *bool, flag string, add, remove *[]string) {
	if requested == nil || *requested == *current {
		return
	}
	*current = *requested
	if *requested {
		*add = append(*add, flag)
	} else {
		*remove = append(*remove, flag)
	}
}

type moveRequest struct {
	TargetFolderID string `json:"target_folder_id"`
}

// Move moves a message to another folder on the server and evicts the
// cached row; the target folder's next sync re-ingests it under its new UID.
func (h *MessagesHandler) Move(w http.ResponseWriter, r *http.Request, messageID string) {
	ctx := r.Context()
	live, ok := GetLiveSession(ctx, w)
	if !ok {
		return
	}

	var req moveRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.TargetFolderID == "" {
		http.Error(w, "target_folder_id is required", http.StatusBadRequest)
		return
	}

	msg, folder, ok := h.lookupMessage(w, r, messageID)
	if !ok {
		return
	}

	target, err := h.store.GetFolder(ctx, live.SessionID, req.TargetFolderID)
	if err != nil {
		if errors.Is(err, store.ErrFolderNotFound) {
			http.Error(w, "Target folder not found", http.StatusNotFound)
			return
		}
		log.Printf("MessagesHandler: Failed to load target folder: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.moveOnServer(ctx, live, msg, folder, target); err != nil {
		log.Printf("MessagesHandler: Failed to move message %s: %v", messageID, err)
		http.Error(w, "Failed to move message", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a message. The default is a soft delete that moves the
// message to the trash folder; hard=1, or the absence of a trash folder,
// deletes it on the server outright.
func (h *MessagesHandler) Delete(w http.ResponseWriter, r *http.Request, messageID string) {
	ctx := r.Context()
	live, ok := GetLiveSession(ctx, w)
	if !ok {
		return
	}

	msg, folder, ok := h.lookupMessage(w, r, messageID)
	if !ok {
		return
	}

	hard := r.URL.Query().Get("hard") == "1"

	if !hard {
		if trash := h.findTrash(r, live.SessionID, folder.ID); trash != nil {
			if err := h.moveOnServer(ctx, live, msg, folder, trash); err != nil {
				log.Printf("MessagesHandler: Failed to trash message %s: %v", messageID, err)
				http.Error(w, "Failed to delete message", http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	err := h.suspendWatch(live, func() error {
		if _, err := live.Conn.OpenFolder(ctx, folder.Path); err != nil {
			return err
		}
		return live.Conn.Delete(ctx, msg.UID, true)
	})
	if err != nil {
		log.Printf("MessagesHandler: Failed to delete message %s: %v", messageID, err)
		http.Error(w, "Failed to delete message", http.StatusBadGateway)
		return
	}

	if err := h.store.DeleteMessage(ctx, msg.ID); err != nil {
		log.Printf("MessagesHandler: Failed to evict deleted message %s: %v", messageID, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessagesHandler) moveOnServer(ctx context.Context, live *session.Live, msg *models.Message, folder, target *models.Folder) error {
	err := h.suspendWatch(live, func() error {
		if _, err := live.Conn.OpenFolder(ctx, folder.Path); err != nil {
			return err
		}
		return live.Conn.Move(ctx, msg.UID, target.Path)
	})
	if err != nil {
		return err
	}
	if err := h.store.DeleteMessage(ctx, msg.ID); err != nil {
		log.Printf("MessagesHandler: Failed to evict moved message %s: %v", msg.ID, err)
	}
	return nil
}

// findTrash returns the session's trash folder, excluding the message's own
// folder (deleting from trash always deletes outright).
func (h *MessagesHandler) findTrash(r *http.Request, sessionID, currentFolderID string) *models.Folder {
	folders, err := h.store.FoldersForSession(r.Context(), sessionID)
	if err != nil {
		log.Printf("MessagesHandler: Failed to look up trash folder: %v", err)
		return nil
	}
	for i := range folders {
		if folders[i].ID == currentFolderID {
			continue
		}
		if strings.EqualFold(folders[i].SpecialUse, "\\Trash") {
			return &folders[i]
		}
	}
	return nil
}

// lookupMessage loads the message and its folder, writing the HTTP error on
// failure.
func (h *MessagesHandler) lookupMessage(w http.ResponseWriter, r *http.Request, messageID string) (*models.Message, *models.Folder, bool) {
	ctx := r.Context()
	live, ok := GetLiveSession(ctx, w)
	if !ok {
		return nil, nil, false
	}

	msg, err := h.store.GetMessage(ctx, live.SessionID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return nil, nil, false
		}
		log.Printf("MessagesHandler: Failed to load message %s: %v", messageID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, nil, false
	}

	folder, err := h.store.GetFolder(ctx, live.SessionID, msg.FolderID)
	if err != nil {
		log.Printf("MessagesHandler: Failed to load folder of message %s: %v", messageID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, nil, false
	}

	return msg, folder, true
}
