package imap

import (
	"testing"

	"github.com/emersion/go-imap/v2"
)

func TestCapabilitiesFromSet(t *testing.T) {
	t.Run("maps advertised capabilities", func(t *testing.T) {
		caps := capabilitiesFromSet(imap.CapSet{
			imap.CapIdle:      {},
			imap.CapCondStore: {},
		})
		if !caps.Idle || !caps.CondStore {
			t.Errorf("Expected idle and condstore, got %+v", caps)
		}
		if caps.Move || caps.QResync {
			t.Errorf("Expected move and qresync unset, got %+v", caps)
		}
	})

	t.Run("empty set yields no capabilities", func(t *testing.T) {
		caps := capabilitiesFromSet(imap.CapSet{})
		if caps != (Capabilities{}) {
			t.Errorf("Expected empty capabilities, got %+v", caps)
		}
	})
}

func TestCredentialsAddress(t *testing.T) {
	creds := Credentials{Host: "imap.example.com", Port: 993}
	if got := creds.Address(); got != "imap.example.com:993" {
		t.Errorf("Expected imap.example.com:993, got %s", got)
	}
}

func TestFolderDisplayName(t *testing.T) {
	t.Run("strips parent hierarchy", func(t *testing.T) {
		if got := folderDisplayName("Work/Projects/2026", '/'); got != "2026" {
			t.Errorf("Expected 2026, got %s", got)
		}
	})

	t.Run("keeps top-level name", func(t *testing.T) {
		if got := folderDisplayName("INBOX", '/'); got != "INBOX" {
			t.Errorf("Expected INBOX, got %s", got)
		}
	})

	t.Run("handles missing delimiter", func(t *testing.T) {
		if got := folderDisplayName("Archive.2025", 0); got != "Archive.2025" {
			t.Errorf("Expected Archive.2025, got %s", got)
		}
	})
}

func TestSpecialUseFromAttrs(t *testing.T) {
	t.Run("extracts special-use attribute", func(t *testing.T) {
		attrs := []imap.MailboxAttr{imap.MailboxAttrHasNoChildren, imap.MailboxAttrTrash}
		if got := specialUseFromAttrs(attrs); got != string(imap.MailboxAttrTrash) {
			t.Errorf("Expected %s, got %s", imap.MailboxAttrTrash, got)
		}
	})

	t.Run("ignores structural attributes", func(t *testing.T) {
		attrs := []imap.MailboxAttr{imap.MailboxAttrHasChildren, imap.MailboxAttrNoSelect}
		if got := specialUseFromAttrs(attrs); got != "" {
			t.Errorf("Expected no role, got %s", got)
		}
	})
}

func TestDefaultRecycleJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := defaultRecycleJitter()
		if d < idleRecycleMin || d >= idleRecycleMax {
			t.Fatalf("Jitter %v outside [%v, %v)", d, idleRecycleMin, idleRecycleMax)
		}
	}
}

func TestEnvelopeFromIMAP(t *testing.T) {
	t.Run("converts addresses", func(t *testing.T) {
		env := envelopeFromIMAP(&imap.Envelope{
			Subject: "Weekly report",
			From: []imap.Address{
				{Name: "Ana Costa", Mailbox: "ana", Host: "example.com"},
			},
			To: []imap.Address{
				{Mailbox: "team", Host: "example.com"},
			},
		})
		if env.Subject != "Weekly report" {
			t.Errorf("Expected subject to carry over, got %s", env.Subject)
		}
		if len(env.From) != 1 || env.From[0].Name != "Ana Costa" || env.From[0].Email != "ana@example.com" {
			t.Errorf("Unexpected from conversion: %+v", env.From)
		}
		if len(env.To) != 1 || env.To[0].Email != "team@example.com" {
			t.Errorf("Unexpected to conversion: %+v", env.To)
		}
	})

	t.Run("nil envelope yields zero value", func(t *testing.T) {
		env := envelopeFromIMAP(nil)
		if env.MessageID != "" || env.From != nil {
			t.Errorf("Expected zero envelope, got %+v", env)
		}
	})
}

func TestSubscriptionStopIsIdempotent(t *testing.T) {
	sub := newSubscription()
	close(sub.done)
	sub.Stop()
	sub.Stop()
}
