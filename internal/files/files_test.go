package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"keeps safe names", "report.pdf", "report.pdf"},
		{"replaces unsafe characters", "my file (1).pdf", "my_file__1_.pdf"},
		{"strips directory components", "../../etc/passwd", "passwd"},
		{"empty name gets a default", "", "attachment"},
		{"fully stripped name gets a default", "...", "attachment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}

	t.Run("caps length at 255", func(t *testing.T) {
		long := strings.Repeat("a", 300) + ".bin"
		if got := SanitizeFilename(long); len(got) != 255 {
			t.Errorf("Expected 255 characters, got %d", len(got))
		}
	})
}

func TestStoreSaveAndResolve(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	relPath, err := store.Save("user@example.com", "msg-1", "report.pdf", []byte("content"))
	if err != nil {
		t.Fatalf("Failed to save attachment: %v", err)
	}

	abs, err := store.AbsolutePath(relPath)
	if err != nil {
		t.Fatalf("Failed to resolve path: %v", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("Expected 'content', got %q", data)
	}

	t.Run("same account shares one directory", func(t *testing.T) {
		other, err := store.Save("user@example.com", "msg-2", "b.txt", []byte("x"))
		if err != nil {
			t.Fatalf("Failed to save second attachment: %v", err)
		}
		if filepath.Dir(filepath.Dir(other)) != filepath.Dir(filepath.Dir(relPath)) {
			t.Errorf("Expected shared account directory, got %s and %s", relPath, other)
		}
	})

	t.Run("address case does not split the directory", func(t *testing.T) {
		upper, err := store.Save("USER@example.com", "msg-3", "c.txt", []byte("y"))
		if err != nil {
			t.Fatalf("Failed to save attachment: %v", err)
		}
		if filepath.Dir(filepath.Dir(upper)) != filepath.Dir(filepath.Dir(relPath)) {
			t.Errorf("Expected case-insensitive account directory")
		}
	})
}

func TestStoreAbsolutePathRejectsEscape(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for _, bad := range []string{"../outside", "a/../../outside", "/etc/passwd"} {
		if _, err := store.AbsolutePath(bad); err == nil {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}

func TestStoreDeleteAll(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	relPath, err := store.Save("gone@example.com", "msg-1", "a.txt", []byte("x"))
	if err != nil {
		t.Fatalf("Failed to save attachment: %v", err)
	}
	keep, err := store.Save("stays@example.com", "msg-1", "b.txt", []byte("y"))
	if err != nil {
		t.Fatalf("Failed to save attachment: %v", err)
	}

	if err := store.DeleteAll("gone@example.com"); err != nil {
		t.Fatalf("Failed to delete account files: %v", err)
	}

	abs, _ := store.AbsolutePath(relPath)
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Errorf("Expected %s to be gone", relPath)
	}

	absKeep, _ := store.AbsolutePath(keep)
	if _, err := os.Stat(absKeep); err != nil {
		t.Errorf("Expected other account's files to survive: %v", err)
	}

	t.Run("deleting an absent account is a no-op", func(t *testing.T) {
		if err := store.DeleteAll("never@example.com"); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})
}
