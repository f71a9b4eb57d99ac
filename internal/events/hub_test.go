package events

import (
	"fmt"
	"testing"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

type fakeSink struct {
	events []Event
	err    error
	closed bool
}

func (s *fakeSink) Write(event Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func TestHubBroadcast(t *testing.T) {
	t.Run("delivers to all subscribers of the session", func(t *testing.T) {
		hub := NewHub()
		a := &fakeSink{}
		b := &fakeSink{}
		hub.Register("sess-1", a)
		hub.Register("sess-1", b)

		hub.Broadcast("sess-1", Event{Type: EventNew, Data: NewPayload{FolderID: "f1", Count: 3}})

		if len(a.events) != 1 || len(b.events) != 1 {
			t.Errorf("Expected 1 event each, got %d and %d", len(a.events), len(b.events))
		}
	})

	t.Run("does not cross sessions", func(t *testing.T) {
		hub := NewHub()
		mine := &fakeSink{}
		other := &fakeSink{}
		hub.Register("sess-1", mine)
		hub.Register("sess-2", other)

		hub.Broadcast("sess-1", Event{Type: EventFlags, Data: FlagsPayload{MessageID: "m1", Flags: models.FlagSet{Seen: true}}})

		if len(mine.events) != 1 {
			t.Errorf("Expected 1 event, got %d", len(mine.events))
		}
		if len(other.events) != 0 {
			t.Errorf("Expected no cross-session delivery, got %d", len(other.events))
		}
	})

	t.Run("no subscribers drops the event silently", func(t *testing.T) {
		hub := NewHub()
		hub.Broadcast("sess-1", Event{Type: EventNew})
	})

	t.Run("failing sink is closed and dropped", func(t *testing.T) {
		hub := NewHub()
		bad := &fakeSink{err: fmt.Errorf("write failed")}
		good := &fakeSink{}
		hub.Register("sess-1", bad)
		hub.Register("sess-1", good)

		hub.Broadcast("sess-1", Event{Type: EventNew})

		if !bad.closed {
			t.Error("Expected failing sink to be closed")
		}
		if hub.ActiveSubscribers("sess-1") != 1 {
			t.Errorf("Expected 1 subscriber left, got %d", hub.ActiveSubscribers("sess-1"))
		}

		hub.Broadcast("sess-1", Event{Type: EventNew})
		if len(good.events) != 2 {
			t.Errorf("Expected surviving sink to keep receiving, got %d", len(good.events))
		}
	})
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	sink := &fakeSink{}
	hub.Register("sess-1", sink)

	hub.Unregister("sess-1", sink)
	if hub.ActiveSubscribers("sess-1") != 0 {
		t.Errorf("Expected 0 subscribers, got %d", hub.ActiveSubscribers("sess-1"))
	}

	t.Run("double unregister is safe", func(t *testing.T) {
		hub.Unregister("sess-1", sink)
	})

	t.Run("unknown session is safe", func(t *testing.T) {
		hub.Unregister("sess-404", sink)
	})
}

func TestHubCloseSession(t *testing.T) {
	hub := NewHub()
	a := &fakeSink{}
	b := &fakeSink{}
	hub.Register("sess-1", a)
	hub.Register("sess-1", b)

	hub.CloseSession("sess-1")

	if !a.closed || !b.closed {
		t.Error("Expected all sinks closed")
	}
	if hub.ActiveSubscribers("sess-1") != 0 {
		t.Errorf("Expected 0 subscribers, got %d", hub.ActiveSubscribers("sess-1"))
	}
}
