package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
	"github.com/mokrane09/amefis-mail-gateway/internal/testutil"
)

func seedSession(t *testing.T, st *store.Store) *models.Session {
	t.Helper()
	sess := &models.Session{
		Email:     "user@example.com",
		Host:      "imap.example.com",
		ExpiresAt: time.Now().UTC().Add(2 * time.Hour),
	}
	require.NoError(t, st.InsertSession(context.Background(), sess))
	return sess
}

func seedFolder(t *testing.T, st *store.Store, sessionID, path string) *models.Folder {
	t.Helper()
	folder := &models.Folder{Name: path, Path: path}
	require.NoError(t, st.InsertFolders(context.Background(), sessionID, []*models.Folder{folder}))
	return folder
}

func TestSessions(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	sess := seedSession(t, st)

	t.Run("round trip", func(t *testing.T) {
		got, err := st.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, sess.Email, got.Email)
		require.Equal(t, sess.Host, got.Host)
	})

	t.Run("touch moves the watermark", func(t *testing.T) {
		at := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Millisecond)
		require.NoError(t, st.TouchSession(ctx, sess.ID, at))

		got, err := st.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.WithinDuration(t, at, got.LastSeenAt, time.Millisecond)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := st.GetSession(ctx, "nope")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("delete cascades", func(t *testing.T) {
		victim := seedSession(t, st)
		folder := seedFolder(t, st, victim.ID, "INBOX")

		require.NoError(t, st.DeleteSession(ctx, victim.ID))

		_, err := st.GetFolder(ctx, victim.ID, folder.ID)
		require.ErrorIs(t, err, store.ErrFolderNotFound)
	})
}

func TestExpiredSessions(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := &models.Session{Email: "old@example.com", Host: "h", ExpiresAt: now.Add(-time.Minute)}
	require.NoError(t, st.InsertSession(ctx, expired))

	idle := &models.Session{Email: "idle@example.com", Host: "h", ExpiresAt: now.Add(time.Hour), LastSeenAt: now.Add(-3 * time.Hour)}
	require.NoError(t, st.InsertSession(ctx, idle))

	fresh := &models.Session{Email: "fresh@example.com", Host: "h", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, st.InsertSession(ctx, fresh))

	got, err := st.ExpiredSessions(ctx, now, now.Add(-2*time.Hour))
	require.NoError(t, err)

	ids := make(map[string]bool, len(got))
	for _, s := range got {
		ids[s.ID] = true
	}
	require.True(t, ids[expired.ID], "absolutely expired session should be returned")
	require.True(t, ids[idle.ID], "idle session should be returned")
	require.False(t, ids[fresh.ID], "fresh session should not be returned")
}

func TestFolders(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, st)

	t.Run("upsert keeps watermarks", func(t *testing.T) {
		folder := seedFolder(t, st, sess.ID, "INBOX")
		require.NoError(t, st.UpdateFolderStatus(ctx, folder.ID, 7, 41, 50))

		// Re-listing after a reconnect must not clobber sync state.
		again := &models.Folder{Name: "Inbox", Path: "INBOX"}
		require.NoError(t, st.InsertFolders(ctx, sess.ID, []*models.Folder{again}))
		require.Equal(t, folder.ID, again.ID, "existing row keeps its id")

		got, err := st.GetFolder(ctx, sess.ID, folder.ID)
		require.NoError(t, err)
		require.Equal(t, int64(7), got.UIDValidity)
		require.Equal(t, int64(41), got.UIDNext)
		require.Equal(t, int64(50), got.HighestModSeq)
		require.Equal(t, "Inbox", got.Name)
	})

	t.Run("lookup by path", func(t *testing.T) {
		seedFolder(t, st, sess.ID, "Archive")
		got, err := st.GetFolderByPath(ctx, sess.ID, "Archive")
		require.NoError(t, err)
		require.Equal(t, "Archive", got.Path)
	})

	t.Run("reset clears messages and rebases epoch", func(t *testing.T) {
		folder := seedFolder(t, st, sess.ID, "Resettable")
		require.NoError(t, st.UpdateFolderStatus(ctx, folder.ID, 7, 41, 50))

		msg := &models.Message{SessionID: sess.ID, FolderID: folder.ID, UID: 5}
		inserted, err := st.InsertMessage(ctx, msg)
		require.NoError(t, err)
		require.True(t, inserted)

		require.NoError(t, st.ResetFolder(ctx, folder.ID, 9))

		got, err := st.GetFolder(ctx, sess.ID, folder.ID)
		require.NoError(t, err)
		require.Equal(t, int64(9), got.UIDValidity)
		require.Zero(t, got.UIDNext)
		require.Zero(t, got.HighestModSeq)

		max, err := st.MaxUID(ctx, folder.ID)
		require.NoError(t, err)
		require.Zero(t, max)
	})
}

func TestMessages(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, st)
	folder := seedFolder(t, st, sess.ID, "INBOX")

	insert := func(t *testing.T, uid int64, subject string) *models.Message {
		t.Helper()
		date := time.Now().UTC().Truncate(time.Second)
		msg := &models.Message{
			SessionID: sess.ID,
			FolderID:  folder.ID,
			UID:       uid,
			MsgID:     "m" + subject,
			Subject:   subject,
			Date:      &date,
			FromEmail: "sender@example.com",
			Flags:     models.FlagSet{Seen: false},
		}
		inserted, err := st.InsertMessage(ctx, msg)
		require.NoError(t, err)
		require.True(t, inserted)
		return msg
	}

	msg10 := insert(t, 10, "first")
	insert(t, 11, "second")
	insert(t, 12, "third")

	t.Run("duplicate uid is not inserted", func(t *testing.T) {
		dup := &models.Message{SessionID: sess.ID, FolderID: folder.ID, UID: 10}
		inserted, err := st.InsertMessage(ctx, dup)
		require.NoError(t, err)
		require.False(t, inserted)

		max, err := st.MaxUID(ctx, folder.ID)
		require.NoError(t, err)
		require.Equal(t, int64(12), max)
	})

	t.Run("has message", func(t *testing.T) {
		ok, err := st.HasMessage(ctx, folder.ID, 10)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = st.HasMessage(ctx, folder.ID, 999)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("conditional flag update by uid", func(t *testing.T) {
		id, changed, err := st.UpdateMessageFlagsByUID(ctx, folder.ID, 10, models.FlagSet{Seen: true})
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, msg10.ID, id)

		// Same flags again: no row rewritten, no event to emit.
		_, changed, err = st.UpdateMessageFlagsByUID(ctx, folder.ID, 10, models.FlagSet{Seen: true})
		require.NoError(t, err)
		require.False(t, changed)

		// Unknown uid behaves the same as unchanged.
		_, changed, err = st.UpdateMessageFlagsByUID(ctx, folder.ID, 999, models.FlagSet{Seen: true})
		require.NoError(t, err)
		require.False(t, changed)
	})

	t.Run("pagination newest first", func(t *testing.T) {
		page, err := st.MessagesForFolder(ctx, sess.ID, folder.ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, int64(12), page[0].UID)
		require.Equal(t, int64(11), page[1].UID)

		rest, err := st.MessagesForFolder(ctx, sess.ID, folder.ID, 2, page[1].UID)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		require.Equal(t, int64(10), rest[0].UID)
	})

	t.Run("search matches subject case-insensitively", func(t *testing.T) {
		found, err := st.SearchMessages(ctx, sess.ID, "FIRST", 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		require.Equal(t, int64(10), found[0].UID)
	})

	t.Run("get and delete", func(t *testing.T) {
		got, err := st.GetMessage(ctx, sess.ID, msg10.ID)
		require.NoError(t, err)
		require.Equal(t, "first", got.Subject)

		require.NoError(t, st.DeleteMessage(ctx, msg10.ID))
		_, err = st.GetMessage(ctx, sess.ID, msg10.ID)
		require.True(t, errors.Is(err, store.ErrMessageNotFound))
	})
}

func TestAttachments(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()
	sess := seedSession(t, st)
	folder := seedFolder(t, st, sess.ID, "INBOX")

	msg := &models.Message{SessionID: sess.ID, FolderID: folder.ID, UID: 1}
	inserted, err := st.InsertMessage(ctx, msg)
	require.NoError(t, err)
	require.True(t, inserted)

	att := &models.Attachment{
		SessionID: sess.ID,
		MessageID: msg.ID,
		Filename:  "report.pdf",
		MimeType:  "application/pdf",
		Size:      1234,
		Path:      "abc/msg/report.pdf",
		IsInline:  false,
	}
	require.NoError(t, st.InsertAttachment(ctx, att))

	t.Run("list for message", func(t *testing.T) {
		got, err := st.AttachmentsForMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "report.pdf", got[0].Filename)
	})

	t.Run("get scoped by session", func(t *testing.T) {
		got, err := st.GetAttachment(ctx, sess.ID, att.ID)
		require.NoError(t, err)
		require.Equal(t, att.Path, got.Path)

		_, err = st.GetAttachment(ctx, "other-session", att.ID)
		require.ErrorIs(t, err, store.ErrAttachmentNotFound)
	})

	t.Run("cascade on message delete", func(t *testing.T) {
		require.NoError(t, st.DeleteMessage(ctx, msg.ID))
		got, err := st.AttachmentsForMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
