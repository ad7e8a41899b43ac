// Package htmlstore persists raw snapshot HTML as files on disk.
//
// Snapshots keep extracted text in the database but only a path to the raw
// markup; the markup itself can be large and is write-once. Files are
// written atomically (write .tmp then rename) so a concurrent reader never
// sees a partial file, and partitioned by fetch date to keep directories
// small.
package htmlstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store deposits raw HTML files under a root directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir. Directories are created on first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Write stores the raw HTML for a snapshot and returns the file path
// recorded in the snapshot row.
func (s *Store) Write(snapshotID string, fetchedAt time.Time, html string) (string, error) {
	dir := filepath.Join(s.root, fetchedAt.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("htmlstore: mkdir %s: %w", dir, err)
	}

	target := filepath.Join(dir, snapshotID+".html")
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("htmlstore: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("htmlstore: rename: %w", err)
	}
	return target, nil
}

// Remove deletes a stored file. An already-missing path is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("htmlstore: remove %s: %w", path, err)
	}
	return nil
}

// Read returns the raw HTML previously stored at path.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("htmlstore: read %s: %w", path, err)
	}
	return string(data), nil
}
