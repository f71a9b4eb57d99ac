package imap

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// fetchOptions are the items every message-handle fetch asks for: envelope,
// flags, size and UID. Bodies are downloaded separately via FetchSource.
func fetchOptions() *imap.FetchOptions {
	return &imap.FetchOptions{
		Envelope:   true,
		Flags:      true,
		UID:        true,
		RFC822Size: true,
	}
}

// FetchNewest selects the folder and fetches the newest n messages by
// sequence number. Used for the initial backfill of a folder.
func (m *Manager) FetchNewest(ctx context.Context, path string, n int) ([]RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, err := m.openFolderLocked(ctx, path)
	if err != nil {
		return nil, err
	}
	if status.Exists == 0 || n <= 0 {
		return nil, nil
	}

	start := uint32(1)
	if status.Exists > uint32(n) {
		start = status.Exists - uint32(n) + 1
	}

	// start:* covers everything from the cutoff to the newest message.
	seqSet := imap.SeqSet{imap.SeqRange{Start: start, Stop: 0}}

	bufs, err := m.client.Fetch(seqSet, fetchOptions()).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch newest messages in %s: %w", path, err)
	}
	return rawMessagesFromBuffers(bufs), nil
}

// FetchByUIDs fetches message handles for the given UIDs in the currently
// open folder.
func (m *Manager) FetchByUIDs(_ context.Context, uids []int64) ([]RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	bufs, err := m.client.Fetch(uidSet, fetchOptions()).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages by uid: %w", err)
	}
	return rawMessagesFromBuffers(bufs), nil
}

// FetchByRange fetches message handles for the UID range [lo, hi] in the
// currently open folder.
func (m *Manager) FetchByRange(_ context.Context, lo, hi int64) ([]RawMessage, error) {
	if hi < lo {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{imap.UIDRange{Start: imap.UID(lo), Stop: imap.UID(hi)}}

	bufs, err := m.client.Fetch(uidSet, fetchOptions()).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch uid range %d:%d: %w", lo, hi, err)
	}
	return rawMessagesFromBuffers(bufs), nil
}

// FetchSource downloads the raw RFC 822 bytes of one message in the
// currently open folder.
func (m *Manager) FetchSource(_ context.Context, uid int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	options := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))
	bufs, err := m.client.Fetch(uidSet, options).Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message source for uid %d: %w", uid, err)
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("server did not return message for uid %d", uid)
	}

	body := bufs[0].FindBodySection(bodySection)
	if body == nil {
		return nil, fmt.Errorf("server returned no body section for uid %d", uid)
	}
	return body, nil
}

// rawMessagesFromBuffers converts fetch response buffers into message
// handles, normalizing flags at this boundary.
func rawMessagesFromBuffers(bufs []*imapclient.FetchMessageBuffer) []RawMessage {
	messages := make([]RawMessage, 0, len(bufs))
	for _, buf := range bufs {
		if buf == nil {
			continue
		}
		messages = append(messages, RawMessage{
			UID:      int64(buf.UID),
			Flags:    flagsFromBuffer(buf),
			Envelope: envelopeFromIMAP(buf.Envelope),
			Size:     buf.RFC822Size,
		})
	}
	return messages
}

// envelopeFromIMAP converts a protocol envelope into the internal shape.
func envelopeFromIMAP(env *imap.Envelope) Envelope {
	if env == nil {
		return Envelope{}
	}
	return Envelope{
		MessageID: env.MessageID,
		InReplyTo: append([]string(nil), env.InReplyTo...),
		Subject:   env.Subject,
		Date:      env.Date,
		From:      addressesFromIMAP(env.From),
		To:        addressesFromIMAP(env.To),
		Cc:        addressesFromIMAP(env.Cc),
		Bcc:       addressesFromIMAP(env.Bcc),
	}
}

func addressesFromIMAP(addrs []imap.Address) []Address {
	if len(addrs) == 0 {
		return nil
	}
	result := make([]Address, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, Address{
			Name:  addr.Name,
			Email: addr.Addr(),
		})
	}
	return result
}
