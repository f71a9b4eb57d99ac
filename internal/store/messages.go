package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

// ErrMessageNotFound is returned when a requested message row is missing.
var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `
	id, session_id, folder_id, uid,
	COALESCE(msg_id, ''), COALESCE(thread_key, ''),
	COALESCE(subject, ''), date,
	COALESCE(from_name, ''), COALESCE(from_email, ''),
	COALESCE(to_list, ''), COALESCE(cc_list, ''), COALESCE(bcc_list, ''),
	seen, flagged, answered, draft, deleted,
	has_text, has_html, COALESCE(snippet, ''), size, has_attachments,
	created_at`

// InsertMessage inserts one cached message. A message that already exists
// at the same (folder, uid) is left untouched; inserted reports whether a
// new row was actually written, which is what makes re-ingestion of an
// overlapping UID range idempotent.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (
			id, session_id, folder_id, uid, msg_id, thread_key,
			subject, date, from_name, from_email, to_list, cc_list, bcc_list,
			seen, flagged, answered, draft, deleted,
			has_text, has_html, snippet, size, has_attachments
		)
		VALUES (
			$1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''),
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23
		)
		ON CONFLICT (folder_id, uid) DO NOTHING
		RETURNING id
	`,
		msg.ID, msg.SessionID, msg.FolderID, msg.UID, msg.MsgID, msg.ThreadKey,
		msg.Subject, msg.Date, msg.FromName, msg.FromEmail, msg.ToList, msg.CcList, msg.BccList,
		msg.Flags.Seen, msg.Flags.Flagged, msg.Flags.Answered, msg.Flags.Draft, msg.Flags.Deleted,
		msg.HasText, msg.HasHTML, msg.Snippet, msg.Size, msg.HasAttachments,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert message uid %d: %w", msg.UID, err)
	}
	msg.ID = id
	return true, nil
}

// UpdateMessageFlags overwrites the flags of one message by id.
func (s *Store) UpdateMessageFlags(ctx context.Context, messageID string, flags models.FlagSet) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET seen = $2, flagged = $3, answered = $4, draft = $5, deleted = $6
		WHERE id = $1
	`, messageID, flags.Seen, flags.Flagged, flags.Answered, flags.Draft, flags.Deleted)
	if err != nil {
		return fmt.Errorf("failed to update message flags: %w", err)
	}
	return nil
}

// UpdateMessageFlagsByUID overwrites the flags of the message at (folder,
// uid), but only when they actually differ from the cached row. changed
// reports whether a row was rewritten; callers emit a flag event only then,
// so re-observing an unchanged flag set stays silent.
func (s *Store) UpdateMessageFlagsByUID(ctx context.Context, folderID string, uid int64, flags models.FlagSet) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET seen = $3, flagged = $4, answered = $5, draft = $6, deleted = $7
		WHERE folder_id = $1 AND uid = $2
		  AND (seen, flagged, answered, draft, deleted)
		      IS DISTINCT FROM ($3, $4, $5, $6, $7)
		RETURNING id
	`, folderID, uid, flags.Seen, flags.Flagged, flags.Answered, flags.Draft, flags.Deleted).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to update flags for uid %d: %w", uid, err)
	}
	return id, true, nil
}

// MaxUID returns the highest cached UID in a folder, or 0 when the folder
// holds no messages yet.
func (s *Store) MaxUID(ctx context.Context, folderID string) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(uid), 0) FROM messages WHERE folder_id = $1
	`, folderID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max uid: %w", err)
	}
	return max, nil
}

// HasMessage reports whether a message is cached at (folder, uid).
func (s *Store) HasMessage(ctx context.Context, folderID string, uid int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM messages WHERE folder_id = $1 AND uid = $2)
	`, folderID, uid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

// RecentMessages returns the n newest cached messages of a folder by UID.
func (s *Store) RecentMessages(ctx context.Context, folderID string, n int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE folder_id = $1
		ORDER BY uid DESC
		LIMIT $2
	`, folderID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MessagesForFolder pages through a folder newest first. A zero cursorUID
// starts at the top; otherwise only messages strictly below the cursor are
// returned.
func (s *Store) MessagesForFolder(ctx context.Context, sessionID, folderID string, limit int, cursorUID int64) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = $1 AND folder_id = $2
		  AND ($4 = 0 OR uid < $4)
		ORDER BY uid DESC
		LIMIT $3
	`, sessionID, folderID, limit, cursorUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query folder messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// GetMessage returns one message of a session by id.
func (s *Store) GetMessage(ctx context.Context, sessionID, messageID string) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = $1 AND id = $2
	`, sessionID, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage removes one cached message. Attachment rows cascade.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// MoveMessage reparents a cached message to another folder, keeping its
// content but rebasing the UID into the target folder's numbering.
func (s *Store) MoveMessage(ctx context.Context, messageID, targetFolderID string, newUID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET folder_id = $2, uid = $3 WHERE id = $1
	`, messageID, targetFolderID, newUID)
	if err != nil {
		return fmt.Errorf("failed to move message: %w", err)
	}
	return nil
}

// SearchMessages matches subject and participant columns against a
// case-insensitive substring, newest first across every folder of the session.
func (s *Store) SearchMessages(ctx context.Context, sessionID, query string, limit int) ([]models.Message, error) {
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = $1
		  AND (subject ILIKE $2
		       OR from_name ILIKE $2 OR from_email ILIKE $2
		       OR to_list ILIKE $2 OR cc_list ILIKE $2 OR bcc_list ILIKE $2)
		ORDER BY date DESC NULLS LAST
		LIMIT $3
	`, sessionID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ThreadMessages returns every message of a session sharing a thread key,
// oldest first.
func (s *Store) ThreadMessages(ctx context.Context, sessionID, threadKey string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = $1 AND thread_key = $2
		ORDER BY date ASC NULLS FIRST
	`, sessionID, threadKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID, &msg.SessionID, &msg.FolderID, &msg.UID,
		&msg.MsgID, &msg.ThreadKey,
		&msg.Subject, &msg.Date,
		&msg.FromName, &msg.FromEmail,
		&msg.ToList, &msg.CcList, &msg.BccList,
		&msg.Flags.Seen, &msg.Flags.Flagged, &msg.Flags.Answered, &msg.Flags.Draft, &msg.Flags.Deleted,
		&msg.HasText, &msg.HasHTML, &msg.Snippet, &msg.Size, &msg.HasAttachments,
		&msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return &msg, nil
}
