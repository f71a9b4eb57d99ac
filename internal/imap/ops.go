package imap

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// SearchChangedSince returns the UIDs of messages changed since the given
// modification sequence. One round trip covers both new arrivals and flag
// mutations. Requires CONDSTORE.
func (m *Manager) SearchChangedSince(_ context.Context, modseq int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		ModSeq: &imap.SearchCriteriaModSeq{ModSeq: uint64(modseq)},
	}
	data, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search changed since modseq %d: %w", modseq, err)
	}
	return uidsToInt64(data.AllUIDs()), nil
}

// SearchUIDRange returns the UIDs present on the server within [lo, hi].
func (m *Manager) SearchUIDRange(_ context.Context, lo, hi int64) ([]int64, error) {
	if hi < lo {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{imap.UIDRange{Start: imap.UID(lo), Stop: imap.UID(hi)}}
	criteria := &imap.SearchCriteria{UID: []imap.UIDSet{uidSet}}

	data, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search uid range %d:%d: %w", lo, hi, err)
	}
	return uidsToInt64(data.AllUIDs()), nil
}

// SetFlags adds or removes flags on one message in the currently open folder.
func (m *Manager) SetFlags(_ context.Context, uid int64, flags []string, remove bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return err
	}
	return m.storeFlagsLocked(uid, flags, remove)
}

func (m *Manager) storeFlagsLocked(uid int64, flags []string, remove bool) error {
	op := imap.StoreFlagsAdd
	if remove {
		op = imap.StoreFlagsDel
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))
	err := m.client.Store(uidSet, &imap.StoreFlags{
		Op:    op,
		Flags: flagsToWire(flags),
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("failed to store flags for uid %d: %w", uid, err)
	}
	return nil
}

// Move moves one message to the target folder. Uses the native MOVE command
// when the server supports it, otherwise falls back to copy plus marking
// the original deleted.
func (m *Manager) Move(_ context.Context, uid int64, targetPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return err
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))

	if m.caps.Move {
		if _, err := m.client.Move(uidSet, targetPath).Wait(); err != nil {
			return fmt.Errorf("failed to move uid %d to %s: %w", uid, targetPath, err)
		}
		return nil
	}

	if _, err := m.client.Copy(uidSet, targetPath).Wait(); err != nil {
		return fmt.Errorf("failed to copy uid %d to %s: %w", uid, targetPath, err)
	}
	if err := m.storeFlagsLocked(uid, []string{string(imap.FlagDeleted)}, false); err != nil {
		return err
	}
	return nil
}

// Delete marks one message deleted. Hard delete also expunges, forcing the
// removal; soft delete leaves the flag for the server's own expunge policy.
func (m *Manager) Delete(_ context.Context, uid int64, hard bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConnectedLocked(); err != nil {
		return err
	}

	if err := m.storeFlagsLocked(uid, []string{string(imap.FlagDeleted)}, false); err != nil {
		return err
	}
	if !hard {
		return nil
	}

	if _, err := m.client.Expunge().Collect(); err != nil {
		return fmt.Errorf("failed to expunge after deleting uid %d: %w", uid, err)
	}
	return nil
}

func uidsToInt64(uids []imap.UID) []int64 {
	if len(uids) == 0 {
		return nil
	}
	result := make([]int64, 0, len(uids))
	for _, uid := range uids {
		result = append(result, int64(uid))
	}
	return result
}
