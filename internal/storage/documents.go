// Package storage owns every file the workflow reads or writes: the shared
// Markdown documents, their backups, the execution log and the persisted
// compliance reports.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DocumentName identifies one of the shared workflow documents.
type DocumentName string

const (
	DocPlan         DocumentName = "plan"
	DocProgress     DocumentName = "progress"
	DocDependencies DocumentName = "dependencies"
	DocExecutionLog DocumentName = "execution_log"
)

// ErrUnknownDocument is returned for a DocumentName the store was not configured with.
var ErrUnknownDocument = errors.New("unknown document")

// DocumentStore is the repository for the shared documents. Writes are atomic:
// readers see either the old or the new content, never a partial file.
type DocumentStore interface {
	Path(name DocumentName) string
	Exists(name DocumentName) bool
	Read(name DocumentName) (string, error)
	Write(name DocumentName, content string) error
	ModTime(path string) (time.Time, bool)
}

type fileDocumentStore struct {
	basePath string
	paths    map[DocumentName]string
}

// NewDocumentStore creates a DocumentStore. Relative paths are resolved
// against basePath.
func NewDocumentStore(basePath string, paths map[DocumentName]string) DocumentStore {
	resolved := make(map[DocumentName]string, len(paths))
	for name, p := range paths {
		resolved[name] = resolvePath(basePath, p)
	}
	return &fileDocumentStore{basePath: basePath, paths: resolved}
}

func resolvePath(basePath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}

func (s *fileDocumentStore) Path(name DocumentName) string {
	return s.paths[name]
}

func (s *fileDocumentStore) Exists(name DocumentName) bool {
	p := s.paths[name]
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func (s *fileDocumentStore) Read(name DocumentName) (string, error) {
	p, ok := s.paths[name]
	if !ok || p == "" {
		return "", fmt.Errorf("reading %s: %w", name, ErrUnknownDocument)
	}
	data, err := os.ReadFile(p) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(data), nil
}

func (s *fileDocumentStore) Write(name DocumentName, content string) error {
	p, ok := s.paths[name]
	if !ok || p == "" {
		return fmt.Errorf("writing %s: %w", name, ErrUnknownDocument)
	}
	if err := writeFileAtomic(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// ModTime returns the modification time of path (resolved against the base
// path) and whether the file exists.
func (s *fileDocumentStore) ModTime(path string) (time.Time, bool) {
	info, err := os.Stat(resolvePath(s.basePath, path))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true
	return nil
}
