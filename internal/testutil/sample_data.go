// Package testutil provides test utilities including sample ingest folders
// and an in-memory database.
package testutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/stretchr/testify/require"
)

// Fictional observer codes for test data.
var ObserverCodes = []string{
	"AB",
	"KX",
	"NORTH-RIDGE",
	"team/blue",
	"obs_7",
	"LakeSide",
}

// Extensions used when generating sample media files.
var (
	VideoExtensions = []string{".mp4", ".MOV", ".avi", ".m4v", ".ts"}
	ImageExtensions = []string{".jpg", ".PNG", ".tiff", ".dng", ".cr2"}
)

// SampleFile is one generated file of an ingest folder.
type SampleFile struct {
	// RelPath is the path relative to the folder root.
	RelPath string
	IsVideo bool
}

// SampleFolder describes a generated ingest folder.
type SampleFolder struct {
	Name  string
	Date  time.Time
	Files []SampleFile
}

// Videos returns the relative paths of the folder's videos.
func (f SampleFolder) Videos() []string {
	var paths []string
	for _, file := range f.Files {
		if file.IsVideo {
			paths = append(paths, file.RelPath)
		}
	}
	return paths
}

// SampleDataGenerator generates sample ingest data with realistic names.
type SampleDataGenerator struct {
	rng *rand.Rand
}

// NewSampleDataGenerator creates a generator seeded from the clock.
func NewSampleDataGenerator() *SampleDataGenerator {
	return NewSampleDataGeneratorWithSeed(time.Now().UnixNano())
}

// NewSampleDataGeneratorWithSeed creates a generator with a fixed seed for
// reproducible output.
func NewSampleDataGeneratorWithSeed(seed int64) *SampleDataGenerator {
	return &SampleDataGenerator{rng: rand.New(rand.NewSource(seed))}
}

// RandomObserver returns a random observer code.
func (g *SampleDataGenerator) RandomObserver() string {
	return ObserverCodes[g.rng.Intn(len(ObserverCodes))]
}

// RandomDate returns a random day between 2015 and 2029.
func (g *SampleDataGenerator) RandomDate() time.Time {
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 0, g.rng.Intn(15*365))
}

// FolderName formats an ingest folder name for a date and observer.
func FolderName(date time.Time, observer string) string {
	return date.Format("2006-01-02") + "-" + observer
}

// GenerateFolder returns a folder with the given number of videos and
// images. Slashes in observer codes are replaced because the folder name is
// a single path element.
func (g *SampleDataGenerator) GenerateFolder(videos, images int) SampleFolder {
	date := g.RandomDate()
	observer := g.RandomObserver()
	folder := SampleFolder{
		Name: FolderName(date, sanitizeObserver(observer)),
		Date: date,
	}
	for i := 0; i < videos; i++ {
		ext := VideoExtensions[g.rng.Intn(len(VideoExtensions))]
		folder.Files = append(folder.Files, SampleFile{
			RelPath: fmt.Sprintf("clip%02d%s", i+1, ext),
			IsVideo: true,
		})
	}
	for i := 0; i < images; i++ {
		ext := ImageExtensions[g.rng.Intn(len(ImageExtensions))]
		folder.Files = append(folder.Files, SampleFile{
			RelPath: fmt.Sprintf("still%03d%s", i+1, ext),
		})
	}
	return folder
}

func sanitizeObserver(code string) string {
	out := []rune(code)
	for i, r := range out {
		if r == '/' {
			out[i] = '-'
		}
	}
	return string(out)
}

// WriteFolder creates folder under root with small placeholder files and
// returns the folder path. Every file gets the folder date as its mtime.
func WriteFolder(t testing.TB, root string, folder SampleFolder) string {
	t.Helper()

	dir := filepath.Join(root, folder.Name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, file := range folder.Files {
		path := filepath.Join(dir, file.RelPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("sample "+file.RelPath), 0o644))
		if !folder.Date.IsZero() {
			require.NoError(t, os.Chtimes(path, folder.Date, folder.Date))
		}
	}
	return dir
}

// TranscodeSettings returns valid settings for a file at 1080p30.
func TranscodeSettings(path string) models.TranscodeSettings {
	return models.TranscodeSettings{
		FilePath:        path,
		InputHeight:     models.DefaultInputHeight,
		NumFrames:       300,
		OutputFramerate: models.DefaultOutputFramerate,
	}
}
