package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/imap"
	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

type fakeStore struct {
	messages    []*models.Message
	attachments []*models.Attachment
	attachErr   error
}

func (s *fakeStore) InsertMessage(_ context.Context, msg *models.Message) (bool, error) {
	for _, existing := range s.messages {
		if existing.FolderID == msg.FolderID && existing.UID == msg.UID {
			return false, nil
		}
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", len(s.messages)+1)
	}
	s.messages = append(s.messages, msg)
	return true, nil
}

func (s *fakeStore) InsertAttachment(_ context.Context, att *models.Attachment) error {
	if s.attachErr != nil {
		return s.attachErr
	}
	s.attachments = append(s.attachments, att)
	return nil
}

type fakeSaver struct {
	saved map[string][]byte
	err   error
}

func (s *fakeSaver) Save(_, messageID, filename string, content []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	rel := messageID + "/" + filename
	s.saved[rel] = content
	return rel, nil
}

type fakeSource struct {
	body []byte
	err  error
}

func (s *fakeSource) FetchSource(context.Context, int64) ([]byte, error) {
	return s.body, s.err
}

func testFolder() *models.Folder {
	return &models.Folder{ID: "folder-1", SessionID: "sess-1", Path: "INBOX"}
}

func testSession() *models.Session {
	return &models.Session{ID: "sess-1", Email: "user@example.com"}
}

func rawMessage(uid int64) imap.RawMessage {
	return imap.RawMessage{
		UID:   uid,
		Flags: models.FlagSet{Seen: true},
		Envelope: imap.Envelope{
			MessageID: "<m1@example.com>",
			Subject:   "Quarterly numbers",
			Date:      time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			From:      []imap.Address{{Name: "Ana", Email: "ana@example.com"}},
			To:        []imap.Address{{Email: "me@example.com"}},
		},
		Size: 2048,
	}
}

const plainSource = "From: ana@example.com\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"Message-ID: <m1@example.com>\r\n" +
	"In-Reply-To: <m0@example.com>\r\n" +
	"References: <root@example.com> <m0@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The numbers look good this quarter.\r\n"

const attachmentSource = "From: ana@example.com\r\n" +
	"To: me@example.com\r\n" +
	"Subject: With attachment\r\n" +
	"Message-ID: <m2@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"xyz\"\r\n" +
	"\r\n" +
	"--xyz\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"See attached.\r\n" +
	"--xyz\r\n" +
	"Content-Type: application/pdf; name=\"report.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"\r\n" +
	"%PDF-fake\r\n" +
	"--xyz--\r\n"

func TestIngestFull(t *testing.T) {
	t.Run("stores message with body metadata", func(t *testing.T) {
		store := &fakeStore{}
		pipeline := New(store, &fakeSaver{})

		inserted, err := pipeline.IngestFull(context.Background(), &fakeSource{body: []byte(plainSource)}, rawMessage(10), testFolder(), testSession())
		if err != nil {
			t.Fatalf("IngestFull failed: %v", err)
		}
		if !inserted {
			t.Fatal("Expected message to be inserted")
		}

		msg := store.messages[0]
		if msg.UID != 10 || msg.MsgID != "m1@example.com" {
			t.Errorf("Unexpected identity: %+v", msg)
		}
		if msg.ThreadKey != "root@example.com" {
			t.Errorf("Expected thread key from references root, got %q", msg.ThreadKey)
		}
		if !msg.HasText || msg.HasHTML {
			t.Errorf("Expected plain-text body flags, got text=%v html=%v", msg.HasText, msg.HasHTML)
		}
		if !strings.Contains(msg.Snippet, "numbers look good") {
			t.Errorf("Unexpected snippet: %q", msg.Snippet)
		}
		if msg.HasAttachments {
			t.Error("Expected no attachments")
		}
	})

	t.Run("stores attachments", func(t *testing.T) {
		store := &fakeStore{}
		saver := &fakeSaver{}
		pipeline := New(store, saver)

		inserted, err := pipeline.IngestFull(context.Background(), &fakeSource{body: []byte(attachmentSource)}, rawMessage(11), testFolder(), testSession())
		if err != nil {
			t.Fatalf("IngestFull failed: %v", err)
		}
		if !inserted {
			t.Fatal("Expected message to be inserted")
		}

		if !store.messages[0].HasAttachments {
			t.Error("Expected has_attachments to be set")
		}
		if len(store.attachments) != 1 {
			t.Fatalf("Expected 1 attachment row, got %d", len(store.attachments))
		}
		att := store.attachments[0]
		if att.Filename != "report.pdf" || att.MimeType != "application/pdf" {
			t.Errorf("Unexpected attachment: %+v", att)
		}
		if len(saver.saved) != 1 {
			t.Errorf("Expected 1 saved file, got %d", len(saver.saved))
		}
	})

	t.Run("re-ingesting the same uid is a no-op", func(t *testing.T) {
		store := &fakeStore{}
		pipeline := New(store, &fakeSaver{})
		src := &fakeSource{body: []byte(plainSource)}

		if _, err := pipeline.IngestFull(context.Background(), src, rawMessage(10), testFolder(), testSession()); err != nil {
			t.Fatalf("First ingest failed: %v", err)
		}
		inserted, err := pipeline.IngestFull(context.Background(), src, rawMessage(10), testFolder(), testSession())
		if err != nil {
			t.Fatalf("Second ingest failed: %v", err)
		}
		if inserted {
			t.Error("Expected second ingest to report no insert")
		}
		if len(store.messages) != 1 {
			t.Errorf("Expected 1 message, got %d", len(store.messages))
		}
	})

	t.Run("attachment failure does not lose the message", func(t *testing.T) {
		store := &fakeStore{}
		pipeline := New(store, &fakeSaver{err: fmt.Errorf("disk full")})

		inserted, err := pipeline.IngestFull(context.Background(), &fakeSource{body: []byte(attachmentSource)}, rawMessage(12), testFolder(), testSession())
		if err != nil {
			t.Fatalf("IngestFull failed: %v", err)
		}
		if !inserted {
			t.Error("Expected message to be inserted despite attachment failure")
		}
		if len(store.attachments) != 0 {
			t.Errorf("Expected no attachment rows, got %d", len(store.attachments))
		}
	})

	t.Run("fetch failure propagates", func(t *testing.T) {
		pipeline := New(&fakeStore{}, &fakeSaver{})
		_, err := pipeline.IngestFull(context.Background(), &fakeSource{err: fmt.Errorf("connection lost")}, rawMessage(13), testFolder(), testSession())
		if err == nil {
			t.Fatal("Expected error")
		}
	})
}

func TestIngestHeader(t *testing.T) {
	t.Run("stores envelope-only row", func(t *testing.T) {
		store := &fakeStore{}
		pipeline := New(store, &fakeSaver{})

		raw := rawMessage(20)
		raw.Envelope.InReplyTo = []string{"<parent@example.com>"}

		inserted, err := pipeline.IngestHeader(context.Background(), raw, testFolder(), testSession())
		if err != nil {
			t.Fatalf("IngestHeader failed: %v", err)
		}
		if !inserted {
			t.Fatal("Expected message to be inserted")
		}

		msg := store.messages[0]
		if msg.ThreadKey != "parent@example.com" {
			t.Errorf("Expected thread key from in-reply-to, got %q", msg.ThreadKey)
		}
		if msg.HasText || msg.HasHTML || msg.Snippet != "" {
			t.Errorf("Expected no body metadata, got %+v", msg)
		}
		if msg.FromName != "Ana" || msg.FromEmail != "ana@example.com" {
			t.Errorf("Unexpected sender: %+v", msg)
		}
		if msg.Date == nil || !msg.Date.Equal(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)) {
			t.Errorf("Unexpected date: %v", msg.Date)
		}
	})
}
