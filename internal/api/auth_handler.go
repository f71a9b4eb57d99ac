package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/config"
	"github.com/mokrane09/amefis-mail-gateway/internal/imap"
	"github.com/mokrane09/amefis-mail-gateway/internal/models"
	"github.com/mokrane09/amefis-mail-gateway/internal/session"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
	imapsync "github.com/mokrane09/amefis-mail-gateway/internal/sync"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	store    *store.Store
	registry *session.Registry
	engine   *imapsync.Engine
	cfg      *config.Config
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(store *store.Store, registry *session.Registry, engine *imapsync.Engine, cfg *config.Config) *AuthHandler {
	return &AuthHandler{store: store, registry: registry, engine: engine, cfg: cfg}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	TLS      *bool  `json:"tls,omitempty"`
}

type loginResponse struct {
	Token   string            `json:"token"`
	Session models.Session    `json:"session"`
	Folders []models.Folder   `json:"folders"`
	Caps    imap.Capabilities `json:"capabilities"`
}

// Login authenticates against the IMAP server, creates the session, caches
// the folder list and backfills the inbox so the first message listing is
// served from the cache immediately.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	creds := h.credentials(req)

	conn, err := imap.Connect(ctx, creds)
	if err != nil {
		if imap.IsAuthError(err) {
			log.Printf("AuthHandler: Login rejected for %s", req.Email)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		log.Printf("AuthHandler: Failed to connect to %s: %v", creds.Address(), err)
		http.Error(w, "Failed to connect to IMAP server", http.StatusBadGateway)
		return
	}

	now := time.Now().UTC()
	sess := &models.Session{
		Email:     req.Email,
		Host:      creds.Host,
		ExpiresAt: now.Add(h.cfg.SessionTTL),
	}
	if err := h.store.InsertSession(ctx, sess); err != nil {
		log.Printf("AuthHandler: Failed to insert session: %v", err)
		_ = conn.Disconnect()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	folders, err := h.cacheFolderList(ctx, conn, sess.ID)
	if err != nil {
		log.Printf("AuthHandler: Failed to cache folders for %s: %v", req.Email, err)
		_ = h.store.DeleteSession(ctx, sess.ID)
		_ = conn.Disconnect()
		http.Error(w, "Failed to list folders", http.StatusBadGateway)
		return
	}

	live, err := h.registry.Create(sess.ID, sess.Email, sess.Host, conn)
	if err != nil {
		log.Printf("AuthHandler: Failed to register session: %v", err)
		_ = h.store.DeleteSession(ctx, sess.ID)
		_ = conn.Disconnect()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if inbox := findInbox(folders); inbox != nil {
		if err := h.engine.SyncFolder(ctx, live, inbox); err != nil {
			// A failed initial backfill is recoverable: the periodic sync
			// will converge the inbox on its next pass.
			log.Printf("AuthHandler: Initial inbox sync failed for %s: %v", req.Email, err)
		}
		if err := h.engine.StartWatch(live, inbox.ID); err != nil {
			log.Printf("AuthHandler: Failed to start inbox watch for %s: %v", req.Email, err)
		}
	}

	WriteJSONResponse(w, loginResponse{
		Token:   live.Token,
		Session: *sess,
		Folders: folders,
		Caps:    conn.Capabilities(),
	})
}

// Logout tears the session down completely: watch loop, connection, cached
// rows, attachment files and event subscribers.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	live, ok := GetLiveSession(r.Context(), w)
	if !ok {
		return
	}

	h.engine.TeardownSession(r.Context(), live.SessionID, live.Email)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) credentials(req loginRequest) imap.Credentials {
	creds := imap.Credentials{
		Host:     h.cfg.IMAPDefaultHost,
		Port:     h.cfg.IMAPDefaultPort,
		TLS:      h.cfg.IMAPDefaultTLS,
		Email:    req.Email,
		Password: req.Password,
	}
	if req.Host != "" {
		creds.Host = req.Host
	}
	if req.Port != 0 {
		creds.Port = req.Port
	}
	if req.TLS != nil {
		creds.TLS = *req.TLS
	}
	return creds
}

// cacheFolderList lists the remote folders and upserts them for the session.
func (h *AuthHandler) cacheFolderList(ctx context.Context, conn session.Connection, sessionID string) ([]models.Folder, error) {
	infos, err := conn.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	folders := make([]*models.Folder, 0, len(infos))
	for _, info := range infos {
		folders = append(folders, &models.Folder{
			Name:       info.Name,
			Path:       info.Path,
			SpecialUse: info.SpecialUse,
		})
	}
	if err := h.store.InsertFolders(ctx, sessionID, folders); err != nil {
		return nil, err
	}

	result := make([]models.Folder, len(folders))
	for i, folder := range folders {
		result[i] = *folder
	}
	return result, nil
}

// findInbox locates the inbox folder: the INBOX path per the protocol, with
// the \Inbox special-use attribute as fallback for servers that rename it.
func findInbox(folders []models.Folder) *models.Folder {
	for i := range folders {
		if isInboxPath(folders[i].Path) {
			return &folders[i]
		}
	}
	for i := range folders {
		if strings.EqualFold(folders[i].SpecialUse, "\\Inbox") {
			return &folders[i]
		}
	}
	return nil
}
