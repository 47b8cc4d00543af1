package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkspace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "temp")

	first, err := NewWorkspace(root)
	require.NoError(t, err)
	second, err := NewWorkspace(root)
	require.NoError(t, err)

	assert.NotEqual(t, first.Dir(), second.Dir(), "workspaces are never shared")
	assert.True(t, strings.HasPrefix(filepath.Base(first.Dir()), WorkspacePrefix))
	assert.True(t, filepath.IsAbs(first.Dir()))

	require.NoError(t, first.Close())
	_, err = os.Stat(first.Dir())
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(second.Dir())
	assert.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestWorkspace_ResolvePath(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	defer ws.Close()

	tests := []struct {
		name        string
		path        string
		shouldError bool
	}{
		{"simple file", "clip01_1080.mp4", false},
		{"nested path", "clip01/clip01.mpd", false},
		{"current dir", ".", false},
		{"dot dot name", "..clip", false},
		{"parent escape attempt", "../escape.mp4", true},
		{"nested parent escape", "clip01/../../escape.mp4", true},
		{"absolute path", "/etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := ws.ResolvePath(tt.path)
			if tt.shouldError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "escapes workspace")
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(resolved, ws.Dir()))
		})
	}
}

func TestWorkspace_MkdirAll(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	defer ws.Close()

	path, err := ws.MkdirAll("clip01")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = ws.MkdirAll("../outside")
	assert.Error(t, err)
}
