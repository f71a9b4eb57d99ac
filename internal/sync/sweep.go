package sync

import (
	"context"
	"log"
	"time"
)

// ExpireSessions tears down every session past its absolute expiry or idle
// longer than the idle timeout. Teardown of one session is isolated: a
// failing step is logged and the remaining steps and sessions still run.
func (e *Engine) ExpireSessions(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := e.store.ExpiredSessions(ctx, now, now.Add(-e.opts.IdleTimeout))
	if err != nil {
		return err
	}

	for _, sess := range expired {
		e.teardownSession(ctx, sess.ID, sess.Email)
	}
	return nil
}

// TeardownSession tears down one session by id: watch loop, connection,
// durable rows, attachment files and event subscribers, in that order.
func (e *Engine) TeardownSession(ctx context.Context, sessionID, email string) {
	e.teardownSession(ctx, sessionID, email)
}

func (e *Engine) teardownSession(ctx context.Context, sessionID, email string) {
	if live, ok := e.registry.DeleteByID(sessionID); ok {
		live.StopWatch()
		if err := live.Conn.Disconnect(); err != nil {
			log.Printf("sync: disconnect of session %s failed: %v", sessionID, err)
		}
	}

	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("sync: failed to delete session %s: %v", sessionID, err)
	}
	if err := e.files.DeleteAll(email); err != nil {
		log.Printf("sync: failed to delete attachments of %s: %v", email, err)
	}
	e.hub.CloseSession(sessionID)
}
