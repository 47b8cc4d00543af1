// Package storage resolves the catalog directory layout and performs the
// filesystem side of output promotion: leaf directory creation, whole
// directory moves, original backups, and per-task workspaces.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var folderNamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.*)$`)

var (
	// ErrInvalidFolderName indicates a source folder that does not follow YYYY-MM-DD-observer_code.
	ErrInvalidFolderName = errors.New("folder name does not match the expected format YYYY-MM-DD-observer_code")

	// ErrMissingAncestor indicates a directory whose parent does not exist.
	// Only leaf directories are ever created.
	ErrMissingAncestor = errors.New("parent directory does not exist")

	// ErrOutsideSource indicates a file that does not live under the source directory.
	ErrOutsideSource = errors.New("file is not inside the source directory")
)

// FolderInfo is the date and observer code embedded in a source folder name.
type FolderInfo struct {
	Year         int
	Month        int
	Day          int
	ObserverCode string
}

// ParseFolderName extracts the catalog folder identity from a folder name
// such as "2023-05-01-AB".
func ParseFolderName(name string) (FolderInfo, error) {
	m := folderNamePattern.FindStringSubmatch(name)
	if m == nil {
		return FolderInfo{}, fmt.Errorf("%w: %q", ErrInvalidFolderName, name)
	}
	date, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return FolderInfo{}, fmt.Errorf("%w: %q: %v", ErrInvalidFolderName, name, err)
	}
	return FolderInfo{
		Year:         date.Year(),
		Month:        int(date.Month()),
		Day:          date.Day(),
		ObserverCode: m[2],
	}, nil
}

// Date returns the folder date formatted as YYYY-MM-DD.
func (f FolderInfo) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", f.Year, f.Month, f.Day)
}

// DecadeRange returns the decade segment, e.g. "2020-2029".
func (f FolderInfo) DecadeRange() string {
	floor := f.Year / 10 * 10
	return fmt.Sprintf("%d-%d", floor, floor+9)
}

// Subdir returns the leaf directory name. Slashes in the observer code
// become dashes.
func (f FolderInfo) Subdir() string {
	return f.Date() + "-" + strings.ReplaceAll(f.ObserverCode, "/", "-")
}

// CatalogDir returns root/{decade}-{decade+9}/{year}/{YYYY-MM-DD}-{observer}.
func CatalogDir(root string, f FolderInfo) string {
	return filepath.Join(root, f.DecadeRange(), strconv.Itoa(f.Year), f.Subdir())
}

// MakeLeafDir creates path if it does not exist. An existing directory is
// not an error; a missing parent is, and is reported as ErrMissingAncestor.
func MakeLeafDir(path string) error {
	err := os.Mkdir(path, 0o755)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		info, statErr := os.Stat(path)
		if statErr != nil {
			return fmt.Errorf("checking %s: %w", path, statErr)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", path)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("creating %s: %w: %w", path, ErrMissingAncestor, err)
	default:
		return fmt.Errorf("creating %s: %w", path, err)
	}
}

// MakeSubdirs creates base/subdirs[0], base/subdirs[0]/subdirs[1], and so
// on, one level at a time. base itself must already exist.
func MakeSubdirs(base string, subdirs []string) error {
	path := base
	for _, dir := range subdirs {
		path = filepath.Join(path, dir)
		if err := MakeLeafDir(path); err != nil {
			return err
		}
	}
	return nil
}

// RelativeSubdirs returns the directories between sourceDir and the file at
// filePath. A file directly inside sourceDir yields no subdirectories.
func RelativeSubdirs(sourceDir, filePath string) ([]string, error) {
	rel, err := filepath.Rel(filepath.Clean(sourceDir), filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOutsideSource, filePath, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideSource, filePath)
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return nil, nil
	}
	return strings.Split(dir, string(filepath.Separator)), nil
}
