package service

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
)

// maxFileNameLength is the longest basename the catalog accepts.
const maxFileNameLength = 100

// ValidateVideo checks an ingested video against the source folder it was
// found in and returns the problems found. Timestamps are compared as local
// calendar dates.
func ValidateVideo(sourceDir string, meta *models.VideoMetadata) models.ValidationStatus {
	status := models.ValidationStatus{
		Errors:   []string{},
		Warnings: []string{},
	}

	if len(filepath.Base(meta.FilePath)) > maxFileNameLength {
		status.Errors = append(status.Errors, models.ValidationLengthError)
	}

	if folderDate, ok := folderDate(sourceDir); ok {
		created := time.Unix(meta.CreatedDate, 0).Format(time.DateOnly)
		modified := time.Unix(meta.ModifiedDate, 0).Format(time.DateOnly)
		if folderDate != created && folderDate != modified {
			status.Warnings = append(status.Warnings, models.ValidationIncorrectCreatedTime)
		}
	}

	switch depth := pathDepth(sourceDir, meta.FilePath); {
	case depth <= 1:
	case depth == 2:
		status.Warnings = append(status.Warnings, models.ValidationVideoPathWarning)
	default:
		status.Errors = append(status.Errors, models.ValidationVideoPathError)
	}

	return status
}

// folderDate returns the YYYY-MM-DD prefix of a source folder name.
func folderDate(sourceDir string) (string, bool) {
	parts := strings.SplitN(filepath.Base(filepath.Clean(sourceDir)), "-", 4)
	if len(parts) < 3 {
		return "", false
	}
	return strings.Join(parts[:3], "-"), true
}

// pathDepth counts the path components of file below sourceDir: 1 for a
// direct child. Files outside sourceDir count as arbitrarily deep.
func pathDepth(sourceDir, file string) int {
	rel, err := filepath.Rel(filepath.Clean(sourceDir), filepath.Clean(file))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return math.MaxInt
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}
