package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// dialTimeout bounds the initial TCP/TLS handshake.
const dialTimeout = 5 * time.Second

// Manager owns one authenticated IMAP connection. All protocol commands are
// serialized through a mutex: the protocol allows only one command pipeline
// per connection, and only one open folder at a time. Multiple managers (one
// per session) operate concurrently without sharing state.
type Manager struct {
	mu      sync.Mutex
	client  *imapclient.Client
	caps    Capabilities
	email   string
	current string // currently selected folder path, "" if none

	eventMu sync.Mutex
	onEvent func(Event)

	// recycleJitter returns the lifetime of one IDLE cycle. Injectable so
	// tests can pin the schedule; defaults to a random point in the
	// 25-29 minute window.
	recycleJitter func() time.Duration
}

// Connect dials the server, authenticates, and probes capabilities once.
// A rejected login returns *AuthError; transport failures return a plain
// wrapped error.
func Connect(ctx context.Context, creds Credentials) (*Manager, error) {
	m := &Manager{
		email:         creds.Email,
		recycleJitter: defaultRecycleJitter,
	}

	options := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: m.handleMailboxUpdate,
			Expunge: m.handleExpunge,
			Fetch:   m.handleFetchUpdate,
		},
	}

	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if creds.TLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", creds.Address(), nil)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", creds.Address())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", creds.Address(), err)
	}

	client := imapclient.New(conn, options)

	if err := client.Login(creds.Email, creds.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &AuthError{Email: creds.Email, Err: err}
	}

	m.client = client
	m.caps = capabilitiesFromSet(client.Caps())
	return m, nil
}

// capabilitiesFromSet maps the advertised capability set onto the flags the
// sync engine gates on.
func capabilitiesFromSet(caps imap.CapSet) Capabilities {
	return Capabilities{
		Idle:      caps.Has(imap.CapIdle),
		Move:      caps.Has(imap.CapMove),
		CondStore: caps.Has(imap.CapCondStore),
		QResync:   caps.Has(imap.CapQResync),
	}
}

// Capabilities returns the flags probed at connect time. They are cached for
// the connection's lifetime; algorithm choices never re-probe mid-session.
func (m *Manager) Capabilities() Capabilities {
	return m.caps
}

// Connected reports whether the connection is still usable.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return false
	}
	state := m.client.State()
	return state == imap.ConnStateAuthenticated || state == imap.ConnStateSelected
}

// OpenFolder selects the folder and returns its fresh watermark snapshot.
// The protocol allows one open folder per connection; selecting a different
// path implicitly closes the prior one. The folder is re-selected even when
// already current, because callers rely on the snapshot being fresh.
func (m *Manager) OpenFolder(ctx context.Context, path string) (FolderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openFolderLocked(ctx, path)
}

func (m *Manager) openFolderLocked(_ context.Context, path string) (FolderStatus, error) {
	if err := m.checkConnectedLocked(); err != nil {
		return FolderStatus{}, err
	}

	options := &imap.SelectOptions{CondStore: m.caps.CondStore}
	data, err := m.client.Select(path, options).Wait()
	if err != nil {
		return FolderStatus{}, fmt.Errorf("failed to select folder %s: %w", path, err)
	}
	m.current = path

	return FolderStatus{
		Path:          path,
		UIDValidity:   int64(data.UIDValidity),
		UIDNext:       int64(data.UIDNext),
		Exists:        data.NumMessages,
		HighestModSeq: int64(data.HighestModSeq),
	}, nil
}

// ListFolders lists every folder on the server with special-use detection.
func (m *Manager) ListFolders(_ context.Context) ([]FolderInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return nil, err
	}

	list, err := m.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	folders := make([]FolderInfo, 0, len(list))
	for _, data := range list {
		folders = append(folders, FolderInfo{
			Name:       folderDisplayName(data.Mailbox, data.Delim),
			Path:       data.Mailbox,
			SpecialUse: specialUseFromAttrs(data.Attrs),
			Delim:      data.Delim,
		})
	}
	return folders, nil
}

// folderDisplayName strips the parent hierarchy from a folder path.
func folderDisplayName(path string, delim rune) string {
	if delim == 0 {
		return path
	}
	if idx := strings.LastIndex(path, string(delim)); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// specialUseFromAttrs extracts the RFC 6154 special-use role, if any.
func specialUseFromAttrs(attrs []imap.MailboxAttr) string {
	for _, attr := range attrs {
		switch attr {
		case imap.MailboxAttrAll, imap.MailboxAttrArchive, imap.MailboxAttrDrafts,
			imap.MailboxAttrFlagged, imap.MailboxAttrJunk, imap.MailboxAttrSent,
			imap.MailboxAttrTrash:
			return string(attr)
		}
	}
	return ""
}

// Disconnect logs out and releases the connection. Safe to call more than
// once; subsequent protocol calls report ErrNotConnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	client := m.client
	m.client = nil
	m.current = ""
	if err := client.Logout().Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// Noop pings the server; used as a connection health check.
func (m *Manager) Noop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return err
	}
	return m.client.Noop().Wait()
}

func (m *Manager) checkConnectedLocked() error {
	if m.client == nil {
		return ErrNotConnected
	}
	state := m.client.State()
	if state != imap.ConnStateAuthenticated && state != imap.ConnStateSelected {
		return ErrNotConnected
	}
	return nil
}

func (m *Manager) setEventCallback(fn func(Event)) {
	m.eventMu.Lock()
	m.onEvent = fn
	m.eventMu.Unlock()
}

func (m *Manager) emit(event Event) {
	m.eventMu.Lock()
	fn := m.onEvent
	m.eventMu.Unlock()
	if fn != nil {
		fn(event)
	}
}

func (m *Manager) handleMailboxUpdate(data *imapclient.UnilateralDataMailbox) {
	if data == nil || data.NumMessages == nil {
		return
	}
	m.emit(Event{Type: EventExists, Count: *data.NumMessages})
}

func (m *Manager) handleExpunge(seqNum uint32) {
	m.emit(Event{Type: EventExpunge, SeqNum: seqNum})
}

func (m *Manager) handleFetchUpdate(msg *imapclient.FetchMessageData) {
	if msg == nil {
		return
	}
	// The buffer must be drained even if nobody is listening.
	buf, err := msg.Collect()
	if err != nil || buf == nil {
		return
	}
	m.emit(Event{
		Type:  EventFlagsChanged,
		UID:   int64(buf.UID),
		Flags: flagsFromBuffer(buf),
	})
}
