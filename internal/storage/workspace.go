package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkspacePrefix prefixes every per-task temporary directory.
const WorkspacePrefix = "dashingest-task-"

// Workspace is a private temporary directory owned by one task execution.
// All paths handed out resolve inside it.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh workspace under root. root is created if needed.
func NewWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating temp root: %w", err)
	}
	dir, err := os.MkdirTemp(root, WorkspacePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	return &Workspace{dir: abs}, nil
}

// Dir returns the absolute workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// ResolvePath resolves a relative path within the workspace.
// Returns an error if the path would escape the workspace or is absolute.
func (w *Workspace) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes workspace: %s (absolute paths not allowed)", relativePath)
	}

	full := filepath.Join(w.dir, filepath.Clean(relativePath))
	if !strings.HasPrefix(full, w.dir+string(filepath.Separator)) && full != w.dir {
		return "", fmt.Errorf("path escapes workspace: %s", relativePath)
	}
	return full, nil
}

// MkdirAll creates a directory, and any parents, within the workspace.
func (w *Workspace) MkdirAll(relativePath string) (string, error) {
	path, err := w.ResolvePath(relativePath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	return path, nil
}

// Close removes the workspace and everything left in it.
func (w *Workspace) Close() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}
