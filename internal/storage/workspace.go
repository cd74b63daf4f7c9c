package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace gives read access to the files the external agent generated.
type Workspace struct {
	root string
}

// NewWorkspace creates a Workspace rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{root: filepath.Clean(root)}
}

// Root returns the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve returns the absolute form of path, interpreting relative paths
// against the workspace root.
func (w *Workspace) Resolve(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}

// Rel returns path relative to the workspace root using forward slashes.
// ok is false when path lies outside the workspace.
func (w *Workspace) Rel(path string) (string, bool) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", false
	}
	root, err := filepath.Abs(w.root)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ReadFile returns the content of a workspace file.
func (w *Workspace) ReadFile(path string) ([]byte, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs) //nolint:gosec // G304: path listed in the agent output manifest
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
