// Package files stores attachment bytes on disk, partitioned per mailbox
// identity so one account's teardown never touches another's data.
package files

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename reduces an attachment filename to a safe single path
// component. Empty or fully-stripped names become "attachment".
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "attachment"
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}

// Store writes and removes attachment files under a single base directory.
type Store struct {
	base string
}

// NewStore creates the base directory if needed and returns a store rooted
// at it.
func NewStore(base string) (*Store, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve attachment base: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attachment base: %w", err)
	}
	return &Store{base: abs}, nil
}

// identityDir derives the per-account directory name. Hashing keeps email
// addresses out of the filesystem namespace.
func identityDir(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])
}

// Save writes one attachment and returns its path relative to the base
// directory. Files are grouped by account, then by message.
func (s *Store) Save(email, messageID, filename string, content []byte) (string, error) {
	relDir := filepath.Join(identityDir(email), messageID)
	dir := filepath.Join(s.base, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachment dir: %w", err)
	}

	relPath := filepath.Join(relDir, SanitizeFilename(filename))
	if err := os.WriteFile(filepath.Join(s.base, relPath), content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return relPath, nil
}

// DeleteAll removes every stored attachment of one account.
func (s *Store) DeleteAll(email string) error {
	dir := filepath.Join(s.base, identityDir(email))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove attachment dir: %w", err)
	}
	return nil
}

// AbsolutePath resolves a stored relative path against the base directory,
// rejecting anything that would escape it.
func (s *Store) AbsolutePath(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("attachment path must be relative: %q", relPath)
	}
	abs := filepath.Join(s.base, relPath)
	abs = filepath.Clean(abs)
	if abs != s.base && !strings.HasPrefix(abs, s.base+string(filepath.Separator)) {
		return "", fmt.Errorf("attachment path escapes storage root: %q", relPath)
	}
	return abs, nil
}
