package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrJobTypeRequired indicates a required job type is empty.
	ErrJobTypeRequired = errors.New("job type is required")

	// ErrInvalidJobType indicates an unknown job type.
	ErrInvalidJobType = errors.New("invalid job type: must be 'METADATA' or 'TRANSCODE'")

	// ErrJobIDRequired indicates a task without an owning job.
	ErrJobIDRequired = errors.New("job_id is required")

	// ErrFilePathRequired indicates a required file path field is empty.
	ErrFilePathRequired = errors.New("file_path is required")

	// ErrFilePathNotAbsolute indicates a relative source path.
	ErrFilePathNotAbsolute = errors.New("file_path must be absolute")

	// ErrScheduleRequired indicates a queue schedule with neither run_at nor cron_schedule.
	ErrScheduleRequired = errors.New("either run_at or cron_schedule is required")

	// ErrScheduleAmbiguous indicates a queue schedule with both run_at and cron_schedule.
	ErrScheduleAmbiguous = errors.New("run_at and cron_schedule are mutually exclusive")
)
