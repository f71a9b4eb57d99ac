package sync

import (
	"context"
	"log"

	"github.com/mokrane09/amefis-mail-gateway/internal/imap"
	"github.com/mokrane09/amefis-mail-gateway/internal/session"
)

// StartWatch begins a push-notification loop on the session's inbox. Any
// arrival, flag change or expunge triggers an asynchronous folder sync; the
// single-flight guard collapses bursts into one running pass. Servers
// without IDLE fall back to the periodic sync alone.
func (e *Engine) StartWatch(live *session.Live, folderID string) error {
	if !live.Conn.Capabilities().Idle {
		return nil
	}

	sub, err := live.Conn.Watch(func(event imap.Event) {
		switch event.Type {
		case imap.EventExists, imap.EventFlagsChanged, imap.EventExpunge:
			// Delivered on the connection's read goroutine; the sync must
			// run elsewhere or stopping the watch deadlocks.
			go e.syncOnPush(live, folderID)
		}
	})
	if err != nil {
		return err
	}

	live.SetWatch(sub, folderID)
	return nil
}

// syncOnPush runs one push-triggered sync. Folder sync suspends the watch
// for its duration, so a burst of pushes collapses into a single pass.
func (e *Engine) syncOnPush(live *session.Live, folderID string) {
	if !e.guard.tryAcquire(folderID) {
		return
	}
	defer e.guard.release(folderID)

	ctx := context.Background()

	folder, err := e.store.GetFolder(ctx, live.SessionID, folderID)
	if err != nil {
		log.Printf("sync: push trigger lost folder %s: %v", folderID, err)
		return
	}

	if err := e.syncFolderLocked(ctx, live, folder); err != nil {
		log.Printf("sync: push-triggered sync of %s failed: %v", folder.Path, err)
	}
}
