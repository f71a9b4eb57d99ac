package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

// ErrFolderNotFound is returned when a requested folder row is missing.
var ErrFolderNotFound = errors.New("folder not found")

// InsertFolders upserts the given folders for a session. Re-listing after a
// reconnect keeps existing rows (and their watermarks) intact and only fills
// in display metadata.
func (s *Store) InsertFolders(ctx context.Context, sessionID string, folders []*models.Folder) error {
	for _, folder := range folders {
		if folder.ID == "" {
			folder.ID = uuid.NewString()
		}
		folder.SessionID = sessionID

		err := s.pool.QueryRow(ctx, `
			INSERT INTO folders (id, session_id, name, path, special_use)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))
			ON CONFLICT (session_id, path) DO UPDATE
				SET name = EXCLUDED.name,
				    special_use = EXCLUDED.special_use
			RETURNING id
		`, folder.ID, sessionID, folder.Name, folder.Path, folder.SpecialUse).Scan(&folder.ID)
		if err != nil {
			return fmt.Errorf("failed to upsert folder %s: %w", folder.Path, err)
		}
	}
	return nil
}

// FoldersForSession returns all folders of a session ordered by path.
func (s *Store) FoldersForSession(ctx context.Context, sessionID string) ([]models.Folder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, name, path, COALESCE(special_use, ''),
		       uid_validity, COALESCE(uid_next, 0), COALESCE(highest_modseq, 0)
		FROM folders
		WHERE session_id = $1
		ORDER BY path
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		var folder models.Folder
		if err := scanFolder(rows, &folder); err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return folders, nil
}

// GetFolder returns one folder of a session by id.
func (s *Store) GetFolder(ctx context.Context, sessionID, folderID string) (*models.Folder, error) {
	var folder models.Folder
	err := scanFolder(s.pool.QueryRow(ctx, `
		SELECT id, session_id, name, path, COALESCE(special_use, ''),
		       uid_validity, COALESCE(uid_next, 0), COALESCE(highest_modseq, 0)
		FROM folders
		WHERE session_id = $1 AND id = $2
	`, sessionID, folderID), &folder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// GetFolderByPath returns one folder of a session by its mailbox path.
func (s *Store) GetFolderByPath(ctx context.Context, sessionID, path string) (*models.Folder, error) {
	var folder models.Folder
	err := scanFolder(s.pool.QueryRow(ctx, `
		SELECT id, session_id, name, path, COALESCE(special_use, ''),
		       uid_validity, COALESCE(uid_next, 0), COALESCE(highest_modseq, 0)
		FROM folders
		WHERE session_id = $1 AND path = $2
	`, sessionID, path), &folder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// UpdateFolderStatus persists the sync watermarks observed after selecting
// the folder on the server.
func (s *Store) UpdateFolderStatus(ctx context.Context, folderID string, uidValidity, uidNext, highestModSeq int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE folders
		SET uid_validity = $2, uid_next = $3, highest_modseq = $4
		WHERE id = $1
	`, folderID, uidValidity, uidNext, highestModSeq)
	if err != nil {
		return fmt.Errorf("failed to update folder status: %w", err)
	}
	return nil
}

// ResetFolder drops every cached message of a folder and rebases its
// watermarks on a new UIDVALIDITY epoch. Used when the server invalidates
// the UID space.
func (s *Store) ResetFolder(ctx context.Context, folderID string, uidValidity int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE folder_id = $1`, folderID); err != nil {
		return fmt.Errorf("failed to clear folder messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE folders
		SET uid_validity = $2, uid_next = NULL, highest_modseq = NULL
		WHERE id = $1
	`, folderID, uidValidity); err != nil {
		return fmt.Errorf("failed to rebase folder watermarks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit folder reset: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner, folder *models.Folder) error {
	err := row.Scan(
		&folder.ID,
		&folder.SessionID,
		&folder.Name,
		&folder.Path,
		&folder.SpecialUse,
		&folder.UIDValidity,
		&folder.UIDNext,
		&folder.HighestModSeq,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to scan folder: %w", err)
	}
	return nil
}
