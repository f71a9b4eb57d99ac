package store

import (
	"context"
	"fmt"
)

// migrations are applied in order at startup. Each statement is idempotent
// so a restart against an already-migrated database is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		host TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_email_idx ON sessions (email)`,
	`CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`,

	`CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		special_use TEXT,
		uid_validity BIGINT NOT NULL DEFAULT 0,
		uid_next BIGINT,
		highest_modseq BIGINT,
		UNIQUE (session_id, path)
	)`,
	`CREATE INDEX IF NOT EXISTS folders_session_id_idx ON folders (session_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
		uid BIGINT NOT NULL,
		msg_id TEXT,
		thread_key TEXT,
		subject TEXT,
		date TIMESTAMPTZ,
		from_name TEXT,
		from_email TEXT,
		to_list TEXT,
		cc_list TEXT,
		bcc_list TEXT,
		seen BOOLEAN NOT NULL DEFAULT false,
		flagged BOOLEAN NOT NULL DEFAULT false,
		answered BOOLEAN NOT NULL DEFAULT false,
		draft BOOLEAN NOT NULL DEFAULT false,
		deleted BOOLEAN NOT NULL DEFAULT false,
		has_text BOOLEAN NOT NULL DEFAULT false,
		has_html BOOLEAN NOT NULL DEFAULT false,
		snippet TEXT,
		size BIGINT NOT NULL DEFAULT 0,
		has_attachments BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (folder_id, uid)
	)`,
	`CREATE INDEX IF NOT EXISTS messages_session_thread_idx ON messages (session_id, thread_key)`,
	`CREATE INDEX IF NOT EXISTS messages_from_email_idx ON messages (from_email)`,

	`CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		path TEXT NOT NULL,
		is_inline BOOLEAN NOT NULL DEFAULT false,
		cid TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS attachments_message_id_idx ON attachments (message_id)`,
	`CREATE INDEX IF NOT EXISTS attachments_cid_idx ON attachments (cid)`,
}

// Migrate applies the schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
	}
	return nil
}
