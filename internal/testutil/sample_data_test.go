package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleDataGeneratorWithSeed(t *testing.T) {
	a := NewSampleDataGeneratorWithSeed(42)
	b := NewSampleDataGeneratorWithSeed(42)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.RandomObserver(), b.RandomObserver())
		assert.Equal(t, a.RandomDate(), b.RandomDate())
	}
}

func TestRandomDate(t *testing.T) {
	g := NewSampleDataGeneratorWithSeed(1)
	for i := 0; i < 100; i++ {
		d := g.RandomDate()
		assert.GreaterOrEqual(t, d.Year(), 2015)
		assert.LessOrEqual(t, d.Year(), 2029)
	}
}

func TestFolderName(t *testing.T) {
	date := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2023-05-01-AB", FolderName(date, "AB"))
}

func TestGenerateFolder(t *testing.T) {
	g := NewSampleDataGeneratorWithSeed(7)
	folder := g.GenerateFolder(3, 2)

	assert.Len(t, folder.Files, 5)
	assert.Len(t, folder.Videos(), 3)
	assert.NotContains(t, folder.Name, "/")
	assert.True(t, strings.HasPrefix(folder.Name, folder.Date.Format("2006-01-02")+"-"))
}

func TestWriteFolder(t *testing.T) {
	g := NewSampleDataGeneratorWithSeed(9)
	folder := g.GenerateFolder(2, 1)

	dir := WriteFolder(t, t.TempDir(), folder)
	assert.Equal(t, folder.Name, filepath.Base(dir))

	for _, file := range folder.Files {
		info, err := os.Stat(filepath.Join(dir, file.RelPath))
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(folder.Date))
	}
}

func TestNewTestDB(t *testing.T) {
	db := NewTestDB(t)

	job := &models.Job{Type: models.JobTypeTranscode}
	require.NoError(t, db.Create(job).Error)
	assert.False(t, job.ID.IsZero())

	assert.True(t, db.Migrator().HasTable(&models.Task{}))
	assert.True(t, db.Migrator().HasTable(&models.Setting{}))
}

func TestTranscodeSettings(t *testing.T) {
	s := TranscodeSettings("/ingest/2023-05-01-AB/clip01.mp4")
	require.NoError(t, s.Validate())
	assert.Equal(t, 1080, s.InputHeight)
}
