// Package service implements the dashingest business operations on top of
// the repositories: job submission and control, the transcode orchestrator,
// metadata ingest, settings, the catalog, and the queue schedule.
package service

import "errors"

// Service-level errors. Handlers map these to HTTP status codes.
var (
	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrSettingNotFound indicates a required setting has no value.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrInvalidSettingKey indicates a key outside the fixed setting enumeration.
	ErrInvalidSettingKey = errors.New("invalid setting key")

	// ErrInvalidSourceDir indicates a missing, relative or unreadable source directory.
	ErrInvalidSourceDir = errors.New("invalid source directory")

	// ErrFolderNotFound indicates the requested catalog folder does not exist.
	ErrFolderNotFound = errors.New("catalog folder not found")

	// ErrWrongJobType indicates an operation applied to a job of another type.
	ErrWrongJobType = errors.New("wrong job type")

	// ErrNoSchedule indicates the queue has no schedule.
	ErrNoSchedule = errors.New("no queue schedule")
)
