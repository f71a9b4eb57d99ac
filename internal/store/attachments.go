package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

// ErrAttachmentNotFound is returned when a requested attachment row is missing.
var ErrAttachmentNotFound = errors.New("attachment not found")

// InsertAttachment persists one attachment row. Generates the ID when empty.
func (s *Store) InsertAttachment(ctx context.Context, att *models.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO attachments (id, session_id, message_id, filename, mime_type, size, path, is_inline, cid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, att.ID, att.SessionID, att.MessageID, att.Filename, att.MimeType, att.Size, att.Path, att.IsInline, att.CID)
	if err != nil {
		return fmt.Errorf("failed to insert attachment %s: %w", att.Filename, err)
	}
	return nil
}

// AttachmentsForMessage returns all attachments of a message in insertion order.
func (s *Store) AttachmentsForMessage(ctx context.Context, messageID string) ([]models.Attachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, message_id, filename, mime_type, size, path, is_inline, COALESCE(cid, '')
		FROM attachments
		WHERE message_id = $1
		ORDER BY created_at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID, &att.SessionID, &att.MessageID,
			&att.Filename, &att.MimeType, &att.Size,
			&att.Path, &att.IsInline, &att.CID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}

// GetAttachment returns one attachment of a session by id.
func (s *Store) GetAttachment(ctx context.Context, sessionID, attachmentID string) (*models.Attachment, error) {
	var att models.Attachment
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, message_id, filename, mime_type, size, path, is_inline, COALESCE(cid, '')
		FROM attachments
		WHERE session_id = $1 AND id = $2
	`, sessionID, attachmentID).Scan(
		&att.ID, &att.SessionID, &att.MessageID,
		&att.Filename, &att.MimeType, &att.Size,
		&att.Path, &att.IsInline, &att.CID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &att, nil
}
