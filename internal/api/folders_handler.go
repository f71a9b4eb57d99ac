package api

import (
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
	"github.com/mokrane09/amefis-mail-gateway/internal/store"
)

// isInboxPath reports whether the path names the protocol-defined inbox.
func isInboxPath(path string) bool {
	return strings.EqualFold(path, "INBOX")
}

// FoldersHandler serves the cached folder list.
type FoldersHandler struct {
	store *store.Store
}

// NewFoldersHandler creates a new FoldersHandler instance.
func NewFoldersHandler(store *store.Store) *FoldersHandler {
	return &FoldersHandler{store: store}
}

// GetFolders returns the session's folders, special-use roles first.
func (h *FoldersHandler) GetFolders(w http.ResponseWriter, r *http.Request) {
	live, ok := GetLiveSession(r.Context(), w)
	if !ok {
		return
	}

	folders, err := h.store.FoldersForSession(r.Context(), live.SessionID)
	if err != nil {
		log.Printf("FoldersHandler: Failed to list folders: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sortFoldersByRole(folders)
	WriteJSONResponse(w, folders)
}

// sortFoldersByRole orders folders by special-use priority, then
// alphabetically by path for folders without a role.
func sortFoldersByRole(folders []models.Folder) {
	rolePriority := map[string]int{
		"":          7,
		"\\Inbox":   1,
		"\\Sent":    2,
		"\\Drafts":  3,
		"\\Junk":    4,
		"\\Trash":   5,
		"\\Archive": 6,
		"\\All":     6,
		"\\Flagged": 6,
	}

	sort.SliceStable(folders, func(i, j int) bool {
		pi := priorityFor(folders[i], rolePriority)
		pj := priorityFor(folders[j], rolePriority)
		if pi != pj {
			return pi < pj
		}
		return folders[i].Path < folders[j].Path
	})
}

func priorityFor(folder models.Folder, rolePriority map[string]int) int {
	// INBOX rarely carries a special-use attribute but always sorts first.
	if folder.SpecialUse == "" && isInboxPath(folder.Path) {
		return rolePriority["\\Inbox"]
	}
	if p, ok := rolePriority[folder.SpecialUse]; ok {
		return p
	}
	return rolePriority[""]
}
