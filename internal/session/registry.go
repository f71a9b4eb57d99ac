// Package session tracks live authenticated sessions: bearer tokens, their
// IMAP connections and push-watch handles.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/imap"
)

// ErrTokenNotFound is returned when a bearer token maps to no live session.
var ErrTokenNotFound = errors.New("session token not found")

// Connection is the slice of the IMAP connection the rest of the system
// uses. *imap.Manager implements it; tests substitute fakes.
type Connection interface {
	Capabilities() imap.Capabilities
	Connected() bool
	OpenFolder(ctx context.Context, path string) (imap.FolderStatus, error)
	ListFolders(ctx context.Context) ([]imap.FolderInfo, error)
	FetchNewest(ctx context.Context, path string, n int) ([]imap.RawMessage, error)
	FetchByUIDs(ctx context.Context, uids []int64) ([]imap.RawMessage, error)
	FetchByRange(ctx context.Context, lo, hi int64) ([]imap.RawMessage, error)
	SearchChangedSince(ctx context.Context, modseq int64) ([]int64, error)
	FetchSource(ctx context.Context, uid int64) ([]byte, error)
	SetFlags(ctx context.Context, uid int64, flags []string, remove bool) error
	Move(ctx context.Context, uid int64, targetPath string) error
	Delete(ctx context.Context, uid int64, hard bool) error
	Watch(onEvent func(imap.Event)) (*imap.Subscription, error)
	Disconnect() error
}

type stopper interface {
	Stop()
}

// Live is one in-memory session: the durable row's identity plus the live
// connection and, when IDLE is running, its watch handle.
type Live struct {
	Token     string
	SessionID string
	Email     string
	Host      string
	CreatedAt time.Time
	Conn      Connection

	mu          sync.Mutex
	lastSeen    time.Time
	watch       stopper
	watchFolder string
}

// Touch moves the in-memory activity watermark.
func (l *Live) Touch(at time.Time) {
	l.mu.Lock()
	l.lastSeen = at
	l.mu.Unlock()
}

// LastSeen returns the in-memory activity watermark.
func (l *Live) LastSeen() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen
}

// SetWatch records the running watch handle and the folder it idles on,
// stopping any previous one.
func (l *Live) SetWatch(w stopper, folderID string) {
	l.mu.Lock()
	prev := l.watch
	l.watch = w
	l.watchFolder = folderID
	l.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
}

// StopWatch stops and clears the watch handle, if any. Returns the folder
// id the watch was idling on so callers can resume it afterwards.
func (l *Live) StopWatch() string {
	l.mu.Lock()
	w := l.watch
	folderID := l.watchFolder
	l.watch = nil
	l.watchFolder = ""
	l.mu.Unlock()
	if w != nil {
		w.Stop()
		return folderID
	}
	return ""
}

// Registry maps bearer tokens to live sessions. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Live
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Live)}
}

// newToken returns a 64-hex-char random bearer token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Create registers a live session under a fresh token and returns it.
func (r *Registry) Create(sessionID, email, host string, conn Connection) (*Live, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	live := &Live{
		Token:     token,
		SessionID: sessionID,
		Email:     email,
		Host:      host,
		CreatedAt: now,
		Conn:      conn,
		lastSeen:  now,
	}

	r.mu.Lock()
	r.sessions[token] = live
	r.mu.Unlock()
	return live, nil
}

// Get resolves a bearer token.
func (r *Registry) Get(token string) (*Live, error) {
	r.mu.RLock()
	live, ok := r.sessions[token]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrTokenNotFound
	}
	return live, nil
}

// GetByID resolves a session by its durable id.
func (r *Registry) GetByID(sessionID string) (*Live, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, live := range r.sessions {
		if live.SessionID == sessionID {
			return live, true
		}
	}
	return nil, false
}

// Delete removes a session by token. Returns the removed session, if any.
// The caller owns teardown of the connection and watch handle.
func (r *Registry) Delete(token string) (*Live, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	return live, ok
}

// DeleteByID removes a session by its durable id. Returns the removed
// session, if any.
func (r *Registry) DeleteByID(sessionID string) (*Live, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, live := range r.sessions {
		if live.SessionID == sessionID {
			delete(r.sessions, token)
			return live, true
		}
	}
	return nil, false
}

// All returns a snapshot of every live session.
func (r *Registry) All() []*Live {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Live, 0, len(r.sessions))
	for _, live := range r.sessions {
		sessions = append(sessions, live)
	}
	return sessions
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
