package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRetryNotFound_RetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	err := RetryNotFound(context.Background(), time.Millisecond, quietLogger(), "move", func() error {
		if attempts.Add(1) < 4 {
			return &fs.PathError{Op: "stat", Path: "/mnt/nas", Err: fs.ErrNotExist}
		}
		return nil
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestRetryNotFound_KeepsRetryingUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var attempts atomic.Int32
	err := RetryNotFound(ctx, 5*time.Millisecond, quietLogger(), "copy", func() error {
		attempts.Add(1)
		return fmt.Errorf("copy destination: %w", fs.ErrNotExist)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, attempts.Load(), int32(3), "not-found errors must never give up on their own")
}

func TestRetryNotFound_PermissionDeniedFailsImmediately(t *testing.T) {
	var attempts atomic.Int32
	err := RetryNotFound(context.Background(), time.Millisecond, quietLogger(), "move", func() error {
		attempts.Add(1)
		return &fs.PathError{Op: "rename", Path: "/srv/optimized", Err: fs.ErrPermission}
	})

	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRetryNotFound_OtherErrorsAreFatal(t *testing.T) {
	boom := errors.New("disk full")
	var attempts atomic.Int32
	err := RetryNotFound(context.Background(), time.Millisecond, quietLogger(), "copy", func() error {
		attempts.Add(1)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestPromoter_MoveDir(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "temp", "clip01")
	writeFiles(t, src, "clip01.mpd", "segment_1080_1.m4s")
	destParent := filepath.Join(root, "optimized")
	require.NoError(t, os.Mkdir(destParent, 0o755))

	p := NewPromoter(time.Millisecond).WithLogger(quietLogger())
	dest, err := p.MoveDir(context.Background(), src, destParent)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(destParent, "clip01"), dest)
	assert.Equal(t, []string{"clip01.mpd", "segment_1080_1.m4s"}, listDir(t, dest))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestPromoter_MoveDir_WaitsForDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "temp", "clip01")
	writeFiles(t, src, "clip01.mpd")
	destParent := filepath.Join(root, "nas")

	// The network share comes back after a few attempts.
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.Mkdir(destParent, 0o755)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPromoter(5 * time.Millisecond).WithLogger(quietLogger())
	dest, err := p.MoveDir(ctx, src, destParent)
	require.NoError(t, err)
	assert.Equal(t, []string{"clip01.mpd"}, listDir(t, dest))
}

func TestPromoter_MoveDir_OccupiedDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "temp", "clip01")
	writeFiles(t, src, "clip01.mpd")
	destParent := filepath.Join(root, "optimized")
	writeFiles(t, destParent, "clip01")

	p := NewPromoter(time.Millisecond).WithLogger(quietLogger())
	_, err := p.MoveDir(context.Background(), src, destParent)
	assert.ErrorIs(t, err, ErrDestinationExists)
}

func TestPromoter_MoveDir_ReplacesPartialCopy(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "temp", "clip01")
	writeFiles(t, src, "clip01.mpd", "segment_1080_1.m4s")
	destParent := filepath.Join(root, "nas")

	// An earlier attempt copied one segment before the share dropped and
	// could not remove it.
	writeFiles(t, filepath.Join(destParent, "clip01"), "segment_1080_1.m4s")

	var attempts atomic.Int32
	var dest string
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := RetryNotFound(ctx, 5*time.Millisecond, quietLogger(), "move", func() error {
		attempts.Add(1)
		var err error
		dest, err = moveDir(src, destParent)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, []string{"clip01.mpd", "segment_1080_1.m4s"}, listDir(t, dest))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestPromoter_MoveDir_RetriesAfterPartialCopy(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "temp", "clip01")
	writeFiles(t, src, "clip01.mpd")
	destParent := filepath.Join(root, "nas")

	// The share is gone on the first attempt and comes back holding a
	// partial copy of the package.
	var attempts atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := RetryNotFound(ctx, time.Millisecond, quietLogger(), "move", func() error {
		if attempts.Add(1) == 2 {
			writeFiles(t, filepath.Join(destParent, "clip01"), "segment_1080_1.m4s")
		}
		_, err := moveDir(src, destParent)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, []string{"clip01.mpd"}, listDir(t, filepath.Join(destParent, "clip01")))
}

func TestPromoter_StaleOutputIsReplaced(t *testing.T) {
	root := t.TempDir()
	destParent := filepath.Join(root, "optimized")
	stale := filepath.Join(destParent, "clip01")
	writeFiles(t, stale, "clip01.mpd", "segment_2160_1.m4s", "segment_2160_2.m4s")

	src := filepath.Join(root, "temp", "clip01")
	writeFiles(t, src, "clip01.mpd", "segment_1080_1.m4s")

	p := NewPromoter(time.Millisecond).WithLogger(quietLogger())
	removed, err := p.RemoveStale(stale)
	require.NoError(t, err)
	assert.True(t, removed)

	dest, err := p.MoveDir(context.Background(), src, destParent)
	require.NoError(t, err)

	assert.Equal(t, []string{"clip01"}, listDir(t, destParent))
	assert.Equal(t, []string{"clip01.mpd", "segment_1080_1.m4s"}, listDir(t, dest))

	content, err := os.ReadFile(filepath.Join(dest, "clip01.mpd"))
	require.NoError(t, err)
	assert.Equal(t, "clip01.mpd", string(content))

	removed, err = p.RemoveStale(filepath.Join(destParent, "absent"))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPromoter_CopyFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "in"), "clip01.mp4")
	destDir := filepath.Join(root, "original")
	require.NoError(t, os.Mkdir(destDir, 0o755))

	p := NewPromoter(time.Millisecond).WithLogger(quietLogger())
	dest, err := p.CopyFile(context.Background(), filepath.Join(root, "in", "clip01.mp4"), destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "clip01.mp4"), dest)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "clip01.mp4", string(content))

	// The source is left in place.
	_, err = os.Stat(filepath.Join(root, "in", "clip01.mp4"))
	assert.NoError(t, err)
}

func TestCopyTree(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFiles(t, src, "a.mpd")
	writeFiles(t, filepath.Join(src, "nested"), "b.m4s")

	dest := filepath.Join(root, "dest")
	require.NoError(t, copyTree(src, dest))

	assert.Equal(t, []string{"a.mpd", "nested"}, listDir(t, dest))
	assert.Equal(t, []string{"b.m4s"}, listDir(t, filepath.Join(dest, "nested")))
}
