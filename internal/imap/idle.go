package imap

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// Servers cap the lifetime of an IDLE session (RFC 2177 suggests breaking
// it at least every 29 minutes). Each cycle lives a random length within
// this window so many connections never recycle in lockstep.
const (
	idleRecycleMin = 25 * time.Minute
	idleRecycleMax = 29 * time.Minute
)

func defaultRecycleJitter() time.Duration {
	return idleRecycleMin + time.Duration(rand.Int63n(int64(idleRecycleMax-idleRecycleMin)))
}

// Subscription is a cancellable handle on a running watch loop.
type Subscription struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscription() *Subscription {
	return &Subscription{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Stop cancels the watch loop and any pending recycle timer. Idempotent;
// it returns once the loop has fully wound down.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// Watch starts the push-notification loop on the currently open folder.
// Events are delivered on the client's connection goroutine; callbacks must
// not block on protocol commands of the same connection. The loop recycles
// the IDLE command at a random point within the 25-29 minute window and
// stops, without retrying, on connection errors.
func (m *Manager) Watch(onEvent func(Event)) (*Subscription, error) {
	if !m.caps.Idle {
		return nil, ErrIdleUnsupported
	}

	m.mu.Lock()
	err := m.checkConnectedLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.setEventCallback(onEvent)

	sub := newSubscription()
	go m.watchLoop(sub)
	return sub, nil
}

func (m *Manager) watchLoop(sub *Subscription) {
	defer close(sub.done)
	defer m.setEventCallback(nil)

	for {
		recycled, err := m.idleCycle(sub.stop)
		if err != nil {
			log.Printf("IMAP IDLE: loop ended for %s: %v", m.email, err)
			return
		}
		if !recycled {
			// Stopped by the subscriber.
			return
		}
	}
}

// idleCycle runs one IDLE command until the recycle timer fires, the
// subscription stops, or the command fails. Returns recycled=true when the
// loop should start another cycle.
func (m *Manager) idleCycle(stop <-chan struct{}) (bool, error) {
	m.mu.Lock()
	if err := m.checkConnectedLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	idleCmd, err := m.client.Idle()
	m.mu.Unlock()
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(m.recycleJitter())
	defer timer.Stop()

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- idleCmd.Wait()
	}()

	select {
	case <-stop:
		_ = idleCmd.Close()
		<-waitDone
		return false, nil
	case <-timer.C:
		_ = idleCmd.Close()
		<-waitDone
		return true, nil
	case err := <-waitDone:
		if err != nil {
			return false, err
		}
		// Server ended IDLE on its own; treat it like a recycle.
		return true, nil
	}
}
