package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/session"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
)

type contextKey string

// liveSessionKey is the context key holding the authenticated live session.
const liveSessionKey contextKey = "live_session"

// SessionToucher persists session activity watermarks.
type SessionToucher interface {
	TouchSession(ctx context.Context, id string, at time.Time) error
}

// RequireSession validates the bearer token against the live session
// registry, refreshes the session's activity watermark and stores the live
// session in the request context. Returns 401 on any failure.
func RequireSession(registry *session.Registry, toucher SessionToucher, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r)
		if token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		live, err := registry.Get(token)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		now := time.Now().UTC()
		live.Touch(now)
		if err := toucher.TouchSession(r.Context(), live.SessionID, now); err != nil {
			// Activity tracking is best effort; the request still proceeds.
			log.Printf("Auth: Failed to touch session %s: %v", live.SessionID, err)
		}

		ctx := context.WithValue(r.Context(), liveSessionKey, live)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLiveSession returns the authenticated live session from the context.
// Writes a 401 and returns false when the middleware did not run.
func GetLiveSession(ctx context.Context, w http.ResponseWriter) (*session.Live, bool) {
	live, ok := ctx.Value(liveSessionKey).(*session.Live)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return live, true
}

var _ SessionToucher = (*store.Store)(nil)
