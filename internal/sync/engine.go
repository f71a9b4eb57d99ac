// Package sync keeps the cached copy of every live session's folders
// converged with the remote server, and sweeps expired sessions.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/events"
	"github.com/mokrane09/amefis-mail-gateway/internal/imap"
	"github.com/mokrane09/amefis-mail-gateway/internal/ingest"
	"github.com/mokrane09/amefis-mail-gateway/internal/models"
	"github.com/mokrane09/amefis-mail-gateway/internal/session"
)

// ErrSyncInProgress is returned when a folder sync is requested while one
// is already running for the same folder.
var ErrSyncInProgress = errors.New("folder sync already in progress")

// Store is the slice of the durable cache the engine reads and writes.
type Store interface {
	FoldersForSession(ctx context.Context, sessionID string) ([]models.Folder, error)
	GetFolder(ctx context.Context, sessionID, folderID string) (*models.Folder, error)
	UpdateFolderStatus(ctx context.Context, folderID string, uidValidity, uidNext, highestModSeq int64) error
	ResetFolder(ctx context.Context, folderID string, uidValidity int64) error
	MaxUID(ctx context.Context, folderID string) (int64, error)
	HasMessage(ctx context.Context, folderID string, uid int64) (bool, error)
	RecentMessages(ctx context.Context, folderID string, n int) ([]models.Message, error)
	UpdateMessageFlagsByUID(ctx context.Context, folderID string, uid int64, flags models.FlagSet) (string, bool, error)
	DeleteSession(ctx context.Context, id string) error
	ExpiredSessions(ctx context.Context, now, idleCutoff time.Time) ([]models.Session, error)
}

// Ingestor writes fetched messages into the cache.
type Ingestor interface {
	IngestFull(ctx context.Context, src ingest.SourceFetcher, raw imap.RawMessage, folder *models.Folder, sess *models.Session) (bool, error)
	IngestHeader(ctx context.Context, raw imap.RawMessage, folder *models.Folder, sess *models.Session) (bool, error)
}

// Broadcaster fans events out to a session's subscribers.
type Broadcaster interface {
	Broadcast(sessionID string, event events.Event)
	CloseSession(sessionID string)
}

// AttachmentStore removes an account's stored attachment bytes at teardown.
type AttachmentStore interface {
	DeleteAll(email string) error
}

// Options tune the engine's schedule and window sizes.
type Options struct {
	SyncInterval  time.Duration
	SweepInterval time.Duration
	// IdleTimeout is how long a session may go untouched before the
	// sweeper reclaims it, independent of its absolute expiry.
	IdleTimeout time.Duration
	// BackfillCount is how many of the newest messages are ingested when a
	// folder is first synced or rebuilt after a UIDVALIDITY change.
	BackfillCount int
	// ReconcileWindow is how many of the newest cached messages get their
	// flags re-checked on servers without CONDSTORE.
	ReconcileWindow int
}

func (o *Options) applyDefaults() {
	if o.SyncInterval <= 0 {
		o.SyncInterval = time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Hour
	}
	if o.BackfillCount <= 0 {
		o.BackfillCount = 50
	}
	if o.ReconcileWindow <= 0 {
		o.ReconcileWindow = 1000
	}
}

// Engine runs the periodic convergence and sweep loops over every live
// session.
type Engine struct {
	store    Store
	registry *session.Registry
	hub      Broadcaster
	pipeline Ingestor
	files    AttachmentStore
	opts     Options

	guard *folderGuard

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewEngine wires an engine over its collaborators.
func NewEngine(store Store, registry *session.Registry, hub Broadcaster, pipeline Ingestor, files AttachmentStore, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:    store,
		registry: registry,
		hub:      hub,
		pipeline: pipeline,
		files:    files,
		opts:     opts,
		guard:    newFolderGuard(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic sync and sweep loops.
func (e *Engine) Start() {
	go e.run()
}

// Stop halts the loops and waits for the current pass to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	<-e.done
}

func (e *Engine) run() {
	defer close(e.done)

	syncTicker := time.NewTicker(e.opts.SyncInterval)
	defer syncTicker.Stop()
	sweepTicker := time.NewTicker(e.opts.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-syncTicker.C:
			e.SyncAll(context.Background())
		case <-sweepTicker.C:
			if err := e.ExpireSessions(context.Background()); err != nil {
				log.Printf("sync: sweep failed: %v", err)
			}
		}
	}
}

// SyncAll runs one convergence pass over every live session. Per-session
// failures are logged and do not stop the pass.
func (e *Engine) SyncAll(ctx context.Context) {
	for _, live := range e.registry.All() {
		if err := e.SyncSession(ctx, live); err != nil {
			log.Printf("sync: session %s: %v", live.SessionID, err)
		}
	}
}

// SyncSession converges every folder of one session. Folders already being
// synced are skipped; other per-folder failures are collected.
func (e *Engine) SyncSession(ctx context.Context, live *session.Live) error {
	folders, err := e.store.FoldersForSession(ctx, live.SessionID)
	if err != nil {
		return err
	}

	var errs []error
	for i := range folders {
		err := e.SyncFolder(ctx, live, &folders[i])
		if errors.Is(err, ErrSyncInProgress) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("folder %s: %w", folders[i].Path, err))
		}
	}
	return errors.Join(errs...)
}

// SyncFolder converges one folder with the server. Only one sync per folder
// runs at a time; concurrent requests get ErrSyncInProgress.
func (e *Engine) SyncFolder(ctx context.Context, live *session.Live, folder *models.Folder) error {
	if !e.guard.tryAcquire(folder.ID) {
		return ErrSyncInProgress
	}
	defer e.guard.release(folder.ID)

	return e.syncFolderLocked(ctx, live, folder)
}

func (e *Engine) syncFolderLocked(ctx context.Context, live *session.Live, folder *models.Folder) error {
	// A running IDLE owns the command pipeline; suspend it for the sync and
	// resume afterwards.
	if watched := live.StopWatch(); watched != "" {
		defer func() {
			if err := e.StartWatch(live, watched); err != nil {
				log.Printf("sync: failed to resume watch for session %s: %v", live.SessionID, err)
			}
		}()
	}

	status, err := live.Conn.OpenFolder(ctx, folder.Path)
	if err != nil {
		return err
	}

	sess := e.sessionModel(live)

	// A changed UIDVALIDITY means every cached UID in the folder belongs to
	// a dead numbering epoch. Drop the cache and rebuild from the newest
	// messages.
	if folder.UIDValidity != 0 && folder.UIDValidity != status.UIDValidity {
		log.Printf("sync: uidvalidity changed for %s (%d -> %d), rebuilding", folder.Path, folder.UIDValidity, status.UIDValidity)
		if err := e.store.ResetFolder(ctx, folder.ID, status.UIDValidity); err != nil {
			return err
		}
		folder.UIDValidity = status.UIDValidity
		folder.UIDNext = 0
		folder.HighestModSeq = 0
		if err := e.Backfill(ctx, live, folder); err != nil {
			return err
		}
		return e.persistStatus(ctx, folder, status)
	}

	if folder.UIDValidity == 0 {
		// First sync of this folder.
		folder.UIDValidity = status.UIDValidity
		if err := e.Backfill(ctx, live, folder); err != nil {
			return err
		}
		return e.persistStatus(ctx, folder, status)
	}

	condstore := live.Conn.Capabilities().CondStore && folder.HighestModSeq > 0 && status.HighestModSeq > 0

	var handled map[int64]bool
	if condstore {
		if status.HighestModSeq > folder.HighestModSeq {
			handled, err = e.syncDelta(ctx, live, folder, sess)
			if err != nil {
				return err
			}
		}
	} else {
		handled, err = e.syncByUIDNext(ctx, live, folder, sess, status)
		if err != nil {
			return err
		}
	}

	// Reconciliation runs on every pass, whichever strategy ran: it corrects
	// flag drift from races and from servers that under-report deltas.
	if err := e.reconcileFlags(ctx, live, folder, sess, handled); err != nil {
		return err
	}

	return e.persistStatus(ctx, folder, status)
}

// syncDelta pulls everything the server marked changed since the cached
// HIGHESTMODSEQ: new arrivals are ingested in full, existing messages get
// their flags reconciled. One event per affected message. Returns the UIDs
// it processed so the reconciliation step does not re-fetch them.
func (e *Engine) syncDelta(ctx context.Context, live *session.Live, folder *models.Folder, sess *models.Session) (map[int64]bool, error) {
	uids, err := live.Conn.SearchChangedSince(ctx, folder.HighestModSeq)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	raws, err := live.Conn.FetchByUIDs(ctx, uids)
	if err != nil {
		return nil, err
	}

	handled := make(map[int64]bool, len(raws))
	for _, raw := range raws {
		handled[raw.UID] = true

		cached, err := e.store.HasMessage(ctx, folder.ID, raw.UID)
		if err != nil {
			return nil, err
		}

		if !cached {
			inserted, err := e.pipeline.IngestFull(ctx, live.Conn, raw, folder, sess)
			if err != nil {
				return nil, err
			}
			if inserted {
				e.hub.Broadcast(sess.ID, events.Event{
					Type: events.EventNew,
					Data: events.NewPayload{FolderID: folder.ID, FolderPath: folder.Path, Count: 1},
				})
			}
			continue
		}

		messageID, changed, err := e.store.UpdateMessageFlagsByUID(ctx, folder.ID, raw.UID, raw.Flags)
		if err != nil {
			return nil, err
		}
		if changed {
			e.hub.Broadcast(sess.ID, events.Event{
				Type: events.EventFlags,
				Data: events.FlagsPayload{MessageID: messageID, Flags: raw.Flags},
			})
		}
	}
	return handled, nil
}

// syncByUIDNext is the fallback for servers without CONDSTORE: any gap
// between the highest cached UID and the server's UIDNEXT is fetched and
// ingested, followed by one aggregate event. Returns the UIDs it ingested
// so the reconciliation step does not re-fetch them.
func (e *Engine) syncByUIDNext(ctx context.Context, live *session.Live, folder *models.Folder, sess *models.Session, status imap.FolderStatus) (map[int64]bool, error) {
	cachedMax, err := e.store.MaxUID(ctx, folder.ID)
	if err != nil {
		return nil, err
	}

	newestUID := status.UIDNext - 1
	if newestUID <= cachedMax {
		return nil, nil
	}

	raws, err := live.Conn.FetchByRange(ctx, cachedMax+1, newestUID)
	if err != nil {
		return nil, err
	}

	handled := make(map[int64]bool, len(raws))
	insertedCount := 0
	for _, raw := range raws {
		handled[raw.UID] = true
		inserted, err := e.pipeline.IngestFull(ctx, live.Conn, raw, folder, sess)
		if err != nil {
			return nil, err
		}
		if inserted {
			insertedCount++
		}
	}

	if insertedCount > 0 {
		e.hub.Broadcast(sess.ID, events.Event{
			Type: events.EventNew,
			Data: events.NewPayload{FolderID: folder.ID, FolderPath: folder.Path, Count: insertedCount},
		})
	}
	return handled, nil
}

// reconcileFlags re-reads the flags of the newest cached messages and
// applies any differences. Unchanged messages stay silent; each changed
// message emits exactly one flag event. The window is the most recently
// cached messages, not a numeric UID range, so sparse UID spaces are still
// fully covered. UIDs already processed this pass are skipped.
func (e *Engine) reconcileFlags(ctx context.Context, live *session.Live, folder *models.Folder, sess *models.Session, handled map[int64]bool) error {
	recent, err := e.store.RecentMessages(ctx, folder.ID, e.opts.ReconcileWindow)
	if err != nil {
		return err
	}

	uids := make([]int64, 0, len(recent))
	for _, msg := range recent {
		if handled[msg.UID] {
			continue
		}
		uids = append(uids, msg.UID)
	}
	if len(uids) == 0 {
		return nil
	}

	raws, err := live.Conn.FetchByUIDs(ctx, uids)
	if err != nil {
		return err
	}

	for _, raw := range raws {
		messageID, changed, err := e.store.UpdateMessageFlagsByUID(ctx, folder.ID, raw.UID, raw.Flags)
		if err != nil {
			return err
		}
		if changed {
			e.hub.Broadcast(sess.ID, events.Event{
				Type: events.EventFlags,
				Data: events.FlagsPayload{MessageID: messageID, Flags: raw.Flags},
			})
		}
	}
	return nil
}

// Backfill ingests the newest messages of a folder in full. Used on first
// sync, after a UIDVALIDITY rebuild, and for the inbox right after login.
func (e *Engine) Backfill(ctx context.Context, live *session.Live, folder *models.Folder) error {
	sess := e.sessionModel(live)

	raws, err := live.Conn.FetchNewest(ctx, folder.Path, e.opts.BackfillCount)
	if err != nil {
		return err
	}

	for _, raw := range raws {
		if _, err := e.pipeline.IngestFull(ctx, live.Conn, raw, folder, sess); err != nil {
			log.Printf("sync: backfill of %s failed at uid %d: %v", folder.Path, raw.UID, err)
		}
	}
	return nil
}

func (e *Engine) persistStatus(ctx context.Context, folder *models.Folder, status imap.FolderStatus) error {
	folder.UIDValidity = status.UIDValidity
	folder.UIDNext = status.UIDNext
	folder.HighestModSeq = status.HighestModSeq
	return e.store.UpdateFolderStatus(ctx, folder.ID, status.UIDValidity, status.UIDNext, status.HighestModSeq)
}

func (e *Engine) sessionModel(live *session.Live) *models.Session {
	return &models.Session{
		ID:    live.SessionID,
		Email: live.Email,
		Host:  live.Host,
	}
}
