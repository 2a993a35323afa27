package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pfrederiksen/fomc-docs/internal/meeting"
)

const (
	DefaultRoot     = "data/fomc_statements"
	LogFileName     = "download_log.csv"
	MissingFileName = "missing_projections.txt"
	DocumentExt     = "pdf"
)

// Store handles the on-disk layout rooted at one directory
type Store struct {
	root string
}

// New creates a Store, expanding a leading ~/ and creating the directory
func New(root string) (*Store, error) {
	root, err := ExpandHome(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{root: root}, nil
}

// ExpandHome replaces a leading ~/ with the user's home directory
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// Root returns the data directory
func (s *Store) Root() string {
	return s.root
}

// DocumentPath returns the canonical path of a meeting's document
func (s *Store) DocumentPath(m meeting.Meeting, c meeting.Category) string {
	return CanonicalPath(s.root, m, c)
}

// OpenLog opens the Collection Log under the store's root
func (s *Store) OpenLog() (*Log, error) {
	return OpenLog(s.root)
}

// CanonicalPath returns <root>/<year>/<date>_<label-slug>_<suffix>.pdf
func CanonicalPath(root string, m meeting.Meeting, c meeting.Category) string {
	return filepath.Join(root, strconv.Itoa(m.Year()), m.FileName(c, DocumentExt))
}

// WriteFileAtomic replaces path with data so that readers see either the old
// file or the complete new one. The temp file lives in the target directory.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// writeIfChanged skips the rewrite when path already holds exactly data
func writeIfChanged(path string, data []byte) error {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	return WriteFileAtomic(path, data, 0644)
}
