package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/api"
	"github.com/mokrane09/amefis-mail-gateway/internal/config"
	"github.com/mokrane09/amefis-mail-gateway/internal/events"
	"github.com/mokrane09/amefis-mail-gateway/internal/files"
	"github.com/mokrane09/amefis-mail-gateway/internal/ingest"
	"github.com/mokrane09/amefis-mail-gateway/internal/session"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
	imapsync "github.com/mokrane09/amefis-mail-gateway/internal/sync"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := store.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	st := store.New(pool)
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Printf("Successfully connected to database")

	fileStore, err := files.NewStore(cfg.AttachmentBase)
	if err != nil {
		log.Fatalf("Failed to prepare attachment storage: %v", err)
	}

	registry := session.NewRegistry()
	hub := events.NewHub()
	pipeline := ingest.New(st, fileStore)

	engine := imapsync.NewEngine(st, registry, hub, pipeline, fileStore, imapsync.Options{
		SyncInterval:  cfg.SyncInterval,
		SweepInterval: cfg.SweepInterval,
		IdleTimeout:   cfg.IdleTimeout,
		BackfillCount: cfg.BackfillCount,
	})
	engine.Start()
	defer engine.Stop()

	handler := NewServer(cfg, st, registry, hub, engine, fileStore)

	address := ":" + cfg.Port
	server := &http.Server{Addr: address, Handler: handler}

	go func() {
		log.Printf("Mail gateway starting on %s (environment: %s)", address, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown did not complete cleanly: %v", err)
	}
}

// NewServer creates and returns the HTTP handler for the mail gateway API.
func NewServer(cfg *config.Config, st *store.Store, registry *session.Registry, hub *events.Hub, engine *imapsync.Engine, fileStore *files.Store) http.Handler {
	authHandler := api.NewAuthHandler(st, registry, engine, cfg)
	foldersHandler := api.NewFoldersHandler(st)
	messagesHandler := api.NewMessagesHandler(st, engine, hub)
	searchHandler := api.NewSearchHandler(st)
	syncHandler := api.NewSyncHandler(st, engine)
	attachmentsHandler := api.NewAttachmentsHandler(st, fileStore)
	eventsHandler := api.NewEventsHandler(hub)
	wsHandler := api.NewWebSocketHandler(registry, st, hub)

	requireSession := func(h http.HandlerFunc) http.Handler {
		return api.RequireSession(registry, st, h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/health", handleHealth)

	mux.Handle("/api/v1/login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandler.Login(w, r)
	}))
	mux.Handle("/api/v1/logout", requireSession(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandler.Logout(w, r)
	}))

	mux.Handle("/api/v1/folders", requireSession(foldersHandler.GetFolders))
	mux.Handle("/api/v1/search", requireSession(searchHandler.Search))
	mux.Handle("/api/v1/sync", requireSession(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		syncHandler.Sync(w, r)
	}))
	mux.Handle("/api/v1/events", requireSession(eventsHandler.Stream))
	// WebSocket handler does its own authentication via query parameter
	// (browsers can't set headers on WebSocket connections).
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	mux.Handle("/api/v1/messages", requireSession(messagesHandler.GetMessages))

	// Handle /api/v1/messages/{message_id} and its subresources.
	mux.Handle("/api/v1/messages/", requireSession(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/messages/")
		if path == "" || path == r.URL.Path {
			http.Error(w, "message_id is required", http.StatusBadRequest)
			return
		}

		if rest, found := strings.CutSuffix(path, "/move"); found {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			messagesHandler.Move(w, r, rest)
			return
		}

		if rest, found := strings.CutSuffix(path, "/flags"); found {
			if r.Method != http.MethodPatch {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			messagesHandler.PatchFlags(w, r, rest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			messagesHandler.GetMessage(w, r, path)
		case http.MethodDelete:
			messagesHandler.Delete(w, r, path)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	// Handle /api/v1/attachments/{attachment_id}.
	mux.Handle("/api/v1/attachments/", requireSession(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/attachments/")
		if path == "" || path == r.URL.Path {
			http.Error(w, "attachment_id is required", http.StatusBadRequest)
			return
		}
		attachmentsHandler.GetAttachment(w, r, path)
	}))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Mail gateway API is running")
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSONResponse(w, map[string]string{"status": "ok"})
}
