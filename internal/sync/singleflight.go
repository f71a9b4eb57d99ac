package sync

import "sync"

// folderGuard serializes sync runs per folder. A folder already being
// synced is skipped, not queued: the running pass will observe any state
// the skipped trigger would have, and the next scheduled pass catches the
// rest.
type folderGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newFolderGuard() *folderGuard {
	return &folderGuard{active: make(map[string]struct{})}
}

// tryAcquire claims the folder. Returns false when a sync already holds it.
func (g *folderGuard) tryAcquire(folderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[folderID]; busy {
		return false
	}
	g.active[folderID] = struct{}{}
	return true
}

// release frees the folder for the next sync.
func (g *folderGuard) release(folderID string) {
	g.mu.Lock()
	delete(g.active, folderID)
	g.mu.Unlock()
}
