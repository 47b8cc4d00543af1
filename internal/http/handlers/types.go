// Package handlers provides HTTP API handlers for dashingest.
package handlers

import (
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service"
	"github.com/jmylchreest/dashingest/internal/storage"
)

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID           models.ULID      `json:"id"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Type         models.JobType   `json:"type"`
	Status       models.JobStatus `json:"status"`
	SourceDir    string           `json:"source_dir"`
	Held         bool             `json:"held"`
	Running      bool             `json:"running"`
	ErrorMessage string           `json:"error_message,omitempty"`
	NextRunAt    *time.Time       `json:"next_run_at,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	DurationMs   int64            `json:"duration_ms,omitempty"`
}

// JobFromModel converts a model to a response.
func JobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		Type:         j.Type,
		Status:       j.Status,
		SourceDir:    j.SourceDir,
		Held:         j.IsHeld(),
		Running:      j.IsRunning(),
		ErrorMessage: j.ErrorMessage,
		NextRunAt:    j.NextRunAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		DurationMs:   j.DurationMs,
	}
}

// JobsFromModels converts models to responses.
func JobsFromModels(jobs []*models.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobFromModel(j))
	}
	return out
}

// serviceError maps a service error onto an HTTP status. msg is used for
// unexpected failures only; known errors report their own message.
func serviceError(msg string, err error) error {
	var validation models.ErrValidation
	switch {
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrFolderNotFound),
		errors.Is(err, service.ErrNoSchedule):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &validation),
		errors.Is(err, service.ErrInvalidSourceDir),
		errors.Is(err, service.ErrInvalidSettingKey),
		errors.Is(err, models.ErrFilePathRequired),
		errors.Is(err, models.ErrFilePathNotAbsolute),
		errors.Is(err, storage.ErrInvalidFolderName):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrWrongJobType):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrSettingNotFound):
		return huma.Error412PreconditionFailed(err.Error())
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

// parseID parses a ULID path parameter.
func parseID(raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest("invalid ID format", err)
	}
	return id, nil
}
