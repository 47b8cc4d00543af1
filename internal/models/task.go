package models

import (
	"path/filepath"
	"strings"

	"gorm.io/gorm"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task was created and has never run.
	TaskStatusQueued TaskStatus = "QUEUED"
	// TaskStatusPending indicates the task is waiting to be (re)run.
	TaskStatusPending TaskStatus = "PENDING"
	// TaskStatusIncomplete indicates the task is being processed.
	TaskStatusIncomplete TaskStatus = "INCOMPLETE"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "COMPLETED"
	// TaskStatusError indicates the task failed.
	TaskStatusError TaskStatus = "ERROR"
)

// IsTerminal reports whether the status ends a run.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// IsRunnable reports whether a worker should pick the task up.
func (s TaskStatus) IsRunnable() bool {
	return s == TaskStatusQueued || s == TaskStatusPending
}

// RestartableTaskStatuses are the statuses a restart collects. QUEUED tasks
// are already runnable and are left as they are.
var RestartableTaskStatuses = []TaskStatus{TaskStatusPending, TaskStatusError}

// RunnableTaskStatuses are the statuses a worker processes.
var RunnableTaskStatuses = []TaskStatus{TaskStatusQueued, TaskStatusPending}

// Default transcode settings.
const (
	DefaultInputHeight     = 1080
	DefaultNumFrames       = 1
	DefaultOutputFramerate = 30
)

// TranscodeSettings describes how one source file is transcoded.
// It is immutable once the owning task is created.
type TranscodeSettings struct {
	FilePath        string `gorm:"size:4096;not null" json:"file_path"`
	InputHeight     int    `gorm:"not null;default:1080" json:"input_height"`
	NumFrames       int    `gorm:"not null;default:1" json:"num_frames"`
	OutputFramerate int    `gorm:"not null;default:30" json:"output_framerate"`
	JPEGQuality     string `gorm:"size:20" json:"jpeg_quality"`
	NewName         string `gorm:"size:255" json:"new_name"`
	IsDark          bool   `json:"is_dark"`
	NeedsMetadata   bool   `json:"needs_metadata"`
}

// ApplyDefaults fills unset numeric fields.
func (s *TranscodeSettings) ApplyDefaults() {
	if s.InputHeight == 0 {
		s.InputHeight = DefaultInputHeight
	}
	if s.NumFrames == 0 {
		s.NumFrames = DefaultNumFrames
	}
	if s.OutputFramerate == 0 {
		s.OutputFramerate = DefaultOutputFramerate
	}
}

// Validate checks the settings after defaults have been applied.
func (s *TranscodeSettings) Validate() error {
	if s.FilePath == "" {
		return ErrFilePathRequired
	}
	if !filepath.IsAbs(s.FilePath) {
		return ErrFilePathNotAbsolute
	}
	if s.InputHeight <= 0 {
		return ErrValidation{Field: "input_height", Message: "must be positive"}
	}
	if s.OutputFramerate <= 0 {
		return ErrValidation{Field: "output_framerate", Message: "must be positive"}
	}
	if s.NumFrames < 0 {
		return ErrValidation{Field: "num_frames", Message: "must not be negative"}
	}
	if strings.ContainsAny(s.NewName, `/\`) {
		return ErrValidation{Field: "new_name", Message: "must not contain path separators"}
	}
	return nil
}

// OutputName is the base name used for the packaged output: NewName when
// set, otherwise the source file name without its extension.
func (s *TranscodeSettings) OutputName() string {
	if s.NewName != "" {
		return s.NewName
	}
	base := filepath.Base(s.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Size estimates the relative cost of transcoding this file, so progress
// bars can weight tasks against each other: frames scaled by pixel area
// relative to 1080p.
func (s *TranscodeSettings) Size() float64 {
	if s.NumFrames <= 0 {
		return 1
	}
	height := s.InputHeight
	if height <= 0 {
		height = DefaultInputHeight
	}
	return float64(s.NumFrames) * float64(height*height) / float64(1080*1080)
}

// Task is one transcodable unit within a job.
type Task struct {
	BaseModel

	JobID           ULID       `gorm:"type:varchar(26);not null;index" json:"job_id"`
	Status          TaskStatus `gorm:"not null;default:'QUEUED';size:20;index" json:"status"`
	Progress        int        `gorm:"not null;default:0" json:"progress"`
	ProgressMessage string     `gorm:"size:1024" json:"progress_message,omitempty"`
	ErrorMessage    string     `gorm:"size:4096" json:"error_message,omitempty"`

	Settings TranscodeSettings `gorm:"embedded;embeddedPrefix:settings_" json:"transcode_settings"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// BeforeCreate is a GORM hook that validates the task and generates ULID.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if err := t.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if t.JobID.IsZero() {
		return ErrJobIDRequired
	}
	if t.Status == "" {
		t.Status = TaskStatusQueued
	}
	return nil
}
