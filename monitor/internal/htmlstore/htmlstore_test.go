package htmlstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// WHAT: Write stores the markup under a date-partitioned path and Read
// returns it unchanged.
func TestWriteRead(t *testing.T) {
	s := New(t.TempDir())
	at := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)

	path, err := s.Write("snap-1", at, "<html><body>hi</body></html>")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(path, string(filepath.Separator)+"2026-08-30"+string(filepath.Separator)) {
		t.Fatalf("path %q not date-partitioned", path)
	}
	if !strings.HasSuffix(path, "snap-1.html") {
		t.Fatalf("path %q not named after snapshot", path)
	}

	got, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "<html><body>hi</body></html>" {
		t.Fatalf("Read = %q", got)
	}
}

// WHAT: no .tmp file is left behind after a successful write.
func TestNoTempFileResidue(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	if _, err := s.Write("snap-1", time.Now(), "<html></html>"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, ".tmp") {
			t.Fatalf("temp file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

// WHAT: reading a missing path is an error, not empty content.
func TestReadMissing(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Read(filepath.Join(t.TempDir(), "nope.html")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// WHAT: Remove deletes a stored file and tolerates an already-missing path.
func TestRemove(t *testing.T) {
	s := New(t.TempDir())
	path, err := s.Write("snap-1", time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), "<html></html>")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Read(path); err == nil {
		t.Fatal("file still readable after Remove")
	}
	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove of missing path: %v", err)
	}
}
