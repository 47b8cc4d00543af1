package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service"
)

// TranscodeHandler handles transcode job submission and task control.
type TranscodeHandler struct {
	jobService *service.JobService
}

// NewTranscodeHandler creates a new transcode handler.
func NewTranscodeHandler(jobService *service.JobService) *TranscodeHandler {
	return &TranscodeHandler{jobService: jobService}
}

// Register registers the transcode routes with the API.
func (h *TranscodeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submitTranscode",
		Method:        "POST",
		Path:          "/api/v1/transcode",
		Summary:       "Submit transcode job",
		Description:   "Creates a transcode job with one task per file. The job runs as soon as a worker is free unless hold is set.",
		Tags:          []string{"Transcode"},
		DefaultStatus: 201,
	}, h.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "getTranscodeTasks",
		Method:      "GET",
		Path:        "/api/v1/transcode/{id}/tasks",
		Summary:     "Get task statuses",
		Description: "Returns status, progress, size and error of every task of a transcode job",
		Tags:        []string{"Transcode"},
	}, h.GetTasks)

	huma.Register(api, huma.Operation{
		OperationID: "restartTranscode",
		Method:      "POST",
		Path:        "/api/v1/transcode/{id}/restart",
		Summary:     "Restart transcode job",
		Description: "Moves pending and failed tasks back to PENDING and dispatches the job while any task is left to run. Completed and queued tasks keep their state.",
		Tags:        []string{"Transcode"},
	}, h.Restart)
}

// TranscodeTaskRequest holds the settings of one file.
type TranscodeTaskRequest struct {
	FilePath        string `json:"file_path" doc:"Absolute path of the source video" minLength:"1"`
	InputHeight     int    `json:"input_height,omitempty" doc:"Source height in pixels (default 1080)" minimum:"0"`
	NumFrames       int    `json:"num_frames,omitempty" doc:"Source frame count used for progress (default 1)" minimum:"0"`
	OutputFramerate int    `json:"output_framerate,omitempty" doc:"Output framerate (default 30)" minimum:"0"`
	JPEGQuality     string `json:"jpeg_quality,omitempty" doc:"Accepted for compatibility, unused"`
	NewName         string `json:"new_name,omitempty" doc:"Output name without extension; defaults to the source name"`
	IsDark          bool   `json:"is_dark,omitempty" doc:"Accepted for compatibility, unused"`
	NeedsMetadata   bool   `json:"needs_metadata,omitempty" doc:"Accepted for compatibility, unused"`
}

func (r TranscodeTaskRequest) toModel() models.TranscodeSettings {
	return models.TranscodeSettings{
		FilePath:        r.FilePath,
		InputHeight:     r.InputHeight,
		NumFrames:       r.NumFrames,
		OutputFramerate: r.OutputFramerate,
		JPEGQuality:     r.JPEGQuality,
		NewName:         r.NewName,
		IsDark:          r.IsDark,
		NeedsMetadata:   r.NeedsMetadata,
	}
}

// SubmitTranscodeInput is the input for submitting a transcode job.
type SubmitTranscodeInput struct {
	Body struct {
		SourceDir string                 `json:"source_dir" doc:"Absolute path of the observation folder (YYYY-MM-DD-observer)" minLength:"1"`
		Settings  []TranscodeTaskRequest `json:"settings" doc:"One entry per file to transcode" minItems:"1"`
		Hold      bool                   `json:"hold,omitempty" doc:"Keep the job queued until the queue is started"`
	}
}

// SubmitTranscodeOutput is the output for submitting a transcode job.
type SubmitTranscodeOutput struct {
	Body struct {
		JobID models.ULID `json:"job_id"`
		Job   JobResponse `json:"job"`
	}
}

// Submit creates a transcode job.
func (h *TranscodeHandler) Submit(ctx context.Context, input *SubmitTranscodeInput) (*SubmitTranscodeOutput, error) {
	req := service.TranscodeRequest{
		SourceDir: input.Body.SourceDir,
		Hold:      input.Body.Hold,
		Tasks:     make([]models.TranscodeSettings, 0, len(input.Body.Settings)),
	}
	for _, s := range input.Body.Settings {
		req.Tasks = append(req.Tasks, s.toModel())
	}

	job, err := h.jobService.SubmitTranscode(ctx, req)
	if err != nil {
		return nil, serviceError("failed to submit transcode job", err)
	}

	resp := &SubmitTranscodeOutput{}
	resp.Body.JobID = job.ID
	resp.Body.Job = JobFromModel(job)
	return resp, nil
}

// GetTasksInput is the input for getting task statuses.
type GetTasksInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetTasksOutput is the output for getting task statuses.
type GetTasksOutput struct {
	Body struct {
		JobID  models.ULID              `json:"job_id"`
		Status models.JobStatus         `json:"status"`
		Tasks  []service.TaskStatusView `json:"tasks"`
	}
}

// GetTasks returns the task statuses of a job.
func (h *TranscodeHandler) GetTasks(ctx context.Context, input *GetTasksInput) (*GetTasksOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}

	status, err := h.jobService.GetStatus(ctx, id)
	if err != nil {
		return nil, serviceError("failed to get job", err)
	}
	tasks, err := h.jobService.GetTaskStatuses(ctx, id)
	if err != nil {
		return nil, serviceError("failed to get tasks", err)
	}

	resp := &GetTasksOutput{}
	resp.Body.JobID = id
	resp.Body.Status = status
	resp.Body.Tasks = tasks
	return resp, nil
}

// RestartInput is the input for restarting a job.
type RestartInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// RestartOutput is the output for restarting a job.
type RestartOutput struct {
	Body struct {
		JobID      models.ULID `json:"job_id"`
		TasksReset int64       `json:"tasks_reset"`
	}
}

// Restart resets the unfinished tasks of a job and dispatches it.
func (h *TranscodeHandler) Restart(ctx context.Context, input *RestartInput) (*RestartOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}

	reset, err := h.jobService.Restart(ctx, id)
	if err != nil {
		return nil, serviceError("failed to restart job", err)
	}

	resp := &RestartOutput{}
	resp.Body.JobID = id
	resp.Body.TasksReset = reset
	return resp, nil
}
