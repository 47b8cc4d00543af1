package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode))
	return path
}

func TestFindBinary(t *testing.T) {
	t.Run("environment variable wins", func(t *testing.T) {
		bin := writeExecutable(t, "MP4Box", 0o755)
		t.Setenv("TEST_MP4BOX_BINARY", bin)

		path, err := FindBinary("ls", "TEST_MP4BOX_BINARY")
		require.NoError(t, err)
		assert.Equal(t, bin, path)
	})

	t.Run("falls back to PATH", func(t *testing.T) {
		path, err := FindBinary("ls", "")
		require.NoError(t, err)
		assert.Contains(t, path, "ls")
	})

	t.Run("non-executable env var is ignored", func(t *testing.T) {
		bin := writeExecutable(t, "ffprobe", 0o644)
		t.Setenv("TEST_FFPROBE_BINARY", bin)

		path, err := FindBinary("ls", "TEST_FFPROBE_BINARY")
		require.NoError(t, err)
		assert.NotEqual(t, bin, path)
	})

	t.Run("directory env var is ignored", func(t *testing.T) {
		t.Setenv("TEST_FFMPEG_BINARY", t.TempDir())

		path, err := FindBinary("ls", "TEST_FFMPEG_BINARY")
		require.NoError(t, err)
		assert.Contains(t, path, "ls")
	})

	t.Run("not found", func(t *testing.T) {
		path, err := FindBinary("definitely-nonexistent-binary-12345", "")
		assert.Error(t, err)
		assert.Empty(t, path)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestResolveBinary(t *testing.T) {
	t.Run("configured path is used as is", func(t *testing.T) {
		bin := writeExecutable(t, "ffmpeg", 0o755)
		path, err := ResolveBinary(bin, "ffmpeg", "")
		require.NoError(t, err)
		assert.Equal(t, bin, path)
	})

	t.Run("configured path must be executable", func(t *testing.T) {
		bin := writeExecutable(t, "ffmpeg", 0o644)
		_, err := ResolveBinary(bin, "ls", "")
		assert.Error(t, err)
	})

	t.Run("empty configured path searches", func(t *testing.T) {
		path, err := ResolveBinary("", "ls", "")
		require.NoError(t, err)
		assert.Contains(t, path, "ls")
	})
}
