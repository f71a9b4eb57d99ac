// Package ingest turns fetched IMAP messages into cached rows and stored
// attachment files.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/mokrane09/amefis-mail-gateway/internal/files"
	"github.com/mokrane09/amefis-mail-gateway/internal/htmlview"
	"github.com/mokrane09/amefis-mail-gateway/internal/imap"
	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

// MessageStore is the slice of the cache the pipeline writes to.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) (bool, error)
	InsertAttachment(ctx context.Context, att *models.Attachment) error
}

// AttachmentSaver stores attachment bytes and returns the relative path.
type AttachmentSaver interface {
	Save(email, messageID, filename string, content []byte) (string, error)
}

// SourceFetcher downloads the full raw source of one message in the
// currently open folder.
type SourceFetcher interface {
	FetchSource(ctx context.Context, uid int64) ([]byte, error)
}

// Pipeline writes fetched messages into the cache.
type Pipeline struct {
	store MessageStore
	files AttachmentSaver
}

// New builds a pipeline over the given cache and attachment store.
func New(store MessageStore, files AttachmentSaver) *Pipeline {
	return &Pipeline{store: store, files: files}
}

// IngestFull downloads the message source, parses the MIME tree and stores
// the message row, body-derived metadata and all attachments. Re-ingesting a
// UID that is already cached is a no-op; inserted reports whether a new row
// was written.
func (p *Pipeline) IngestFull(ctx context.Context, src SourceFetcher, raw imap.RawMessage, folder *models.Folder, sess *models.Session) (bool, error) {
	source, err := src.FetchSource(ctx, raw.UID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch source for uid %d: %w", raw.UID, err)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(source))
	if err != nil {
		// An unparseable body still gets a header-only row so the folder
		// converges instead of wedging on one malformed message.
		log.Printf("ingest: failed to parse uid %d in %s: %v", raw.UID, folder.Path, err)
		return p.IngestHeader(ctx, raw, folder, sess)
	}

	msg := messageFromRaw(raw, folder, sess)
	msg.ThreadKey = ComputeThreadKey(
		strings.Fields(env.GetHeader("References")),
		env.GetHeader("In-Reply-To"),
		msg.MsgID,
	)

	text := env.Text
	if text == "" && env.HTML != "" {
		text = htmlview.ExtractPlainText(env.HTML)
	}
	msg.HasText = env.Text != ""
	msg.HasHTML = env.HTML != ""
	msg.Snippet = htmlview.Snippet(text)

	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines))
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)
	msg.HasAttachments = len(parts) > 0

	inserted, err := p.store.InsertMessage(ctx, msg)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	for _, part := range parts {
		if err := p.storeAttachment(ctx, msg, sess, part); err != nil {
			// One bad part must not lose the message or its siblings.
			log.Printf("ingest: failed to store attachment %q for uid %d: %v", part.FileName, raw.UID, err)
		}
	}
	return true, nil
}

// IngestHeader stores a message row from envelope data alone, without
// downloading the body. Used for delta syncs of messages whose bodies are
// fetched lazily.
func (p *Pipeline) IngestHeader(ctx context.Context, raw imap.RawMessage, folder *models.Folder, sess *models.Session) (bool, error) {
	msg := messageFromRaw(raw, folder, sess)

	inReplyTo := ""
	if len(raw.Envelope.InReplyTo) > 0 {
		inReplyTo = raw.Envelope.InReplyTo[0]
	}
	msg.ThreadKey = ComputeThreadKey(nil, inReplyTo, msg.MsgID)

	return p.store.InsertMessage(ctx, msg)
}

func (p *Pipeline) storeAttachment(ctx context.Context, msg *models.Message, sess *models.Session, part *enmime.Part) error {
	filename := files.SanitizeFilename(part.FileName)

	relPath, err := p.files.Save(sess.Email, msg.ID, filename, part.Content)
	if err != nil {
		return err
	}

	mimeType := part.ContentType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return p.store.InsertAttachment(ctx, &models.Attachment{
		SessionID: sess.ID,
		MessageID: msg.ID,
		Filename:  filename,
		MimeType:  mimeType,
		Size:      int64(len(part.Content)),
		Path:      relPath,
		IsInline:  part.Disposition == "inline" || part.ContentID != "",
		CID:       strings.Trim(part.ContentID, "<>"),
	})
}

func messageFromRaw(raw imap.RawMessage, folder *models.Folder, sess *models.Session) *models.Message {
	msg := &models.Message{
		SessionID: sess.ID,
		FolderID:  folder.ID,
		UID:       raw.UID,
		MsgID:     strings.Trim(raw.Envelope.MessageID, "<>"),
		Subject:   raw.Envelope.Subject,
		Flags:     raw.Flags,
		Size:      raw.Size,
		ToList:    formatAddressList(raw.Envelope.To),
		CcList:    formatAddressList(raw.Envelope.Cc),
		BccList:   formatAddressList(raw.Envelope.Bcc),
	}
	if !raw.Envelope.Date.IsZero() {
		date := raw.Envelope.Date
		msg.Date = &date
	}
	if len(raw.Envelope.From) > 0 {
		msg.FromName = raw.Envelope.From[0].Name
		msg.FromEmail = raw.Envelope.From[0].Email
	}
	return msg
}

func formatAddressList(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", addr.Name, addr.Email))
		} else {
			parts = append(parts, addr.Email)
		}
	}
	return strings.Join(parts, ", ")
}
