// Package startup runs the housekeeping dashingest needs before it accepts
// work: removing leftover task workspaces and settling jobs and tasks that a
// previous process left mid-run.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/dashingest/internal/storage"
)

// DefaultCleanupAge is the default maximum age for orphaned task workspaces.
const DefaultCleanupAge = 1 * time.Hour

// CleanupOrphanedTempDirs removes task workspaces under baseDir whose
// modification time is older than maxAge. Only directories carrying
// storage.WorkspacePrefix are considered.
//
// Returns the number of directories removed.
func CleanupOrphanedTempDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("temp directory does not exist, skipping cleanup",
			slog.String("path", baseDir))
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read directory for cleanup",
			slog.String("path", baseDir),
			slog.Any("error", err))
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), storage.WorkspacePrefix) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get workspace info",
				slog.String("path", dirPath),
				slog.Any("error", err))
			continue
		}

		age := time.Since(info.ModTime()).Round(time.Second)
		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent workspace",
				slog.String("path", dirPath),
				slog.Duration("age", age))
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned workspace",
				slog.String("path", dirPath),
				slog.Any("error", err))
			continue
		}

		logger.Info("removed orphaned workspace",
			slog.String("path", dirPath),
			slog.Duration("age", age))
		removed++
	}

	return removed, nil
}
