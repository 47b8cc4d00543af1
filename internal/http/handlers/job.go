package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/scheduler"
	"github.com/jmylchreest/dashingest/internal/service"
)

// JobHandler handles job API endpoints.
type JobHandler struct {
	jobService *service.JobService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobService,
	}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns all jobs, optionally filtered by type",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "listRunningJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs/running",
		Summary:     "List running jobs",
		Description: "Returns all jobs currently locked by a worker",
		Tags:        []string{"Jobs"},
	}, h.ListRunning)

	huma.Register(api, huma.Operation{
		OperationID: "getRunnerStatus",
		Method:      "GET",
		Path:        "/api/v1/jobs/runner",
		Summary:     "Get runner status",
		Description: "Returns the job runner status",
		Tags:        []string{"Jobs"},
	}, h.GetRunnerStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Returns a job by ID",
		Tags:        []string{"Jobs"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "deleteJob",
		Method:      "DELETE",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Delete job",
		Description: "Deletes a job and its tasks, returning the IDs of the removed tasks",
		Tags:        []string{"Jobs"},
	}, h.Delete)
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Type string `query:"type" doc:"Job type filter" enum:"METADATA,TRANSCODE"`
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobResponse `json:"jobs"`
	}
}

// List returns all jobs.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	var (
		jobs []*models.Job
		err  error
	)
	if input.Type != "" {
		jobs, err = h.jobService.GetByType(ctx, models.JobType(input.Type))
	} else {
		jobs, err = h.jobService.GetAll(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Jobs = JobsFromModels(jobs)
	return resp, nil
}

// ListRunningJobsInput is the input for listing running jobs.
type ListRunningJobsInput struct{}

// ListRunning returns all running jobs.
func (h *JobHandler) ListRunning(ctx context.Context, input *ListRunningJobsInput) (*ListJobsOutput, error) {
	jobs, err := h.jobService.GetRunning(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list running jobs", err)
	}

	resp := &ListJobsOutput{}
	resp.Body.Jobs = JobsFromModels(jobs)
	return resp, nil
}

// GetRunnerStatusInput is the input for getting runner status.
type GetRunnerStatusInput struct{}

// GetRunnerStatusOutput is the output for getting runner status.
type GetRunnerStatusOutput struct {
	Body scheduler.RunnerStatus
}

// GetRunnerStatus returns the runner status.
func (h *JobHandler) GetRunnerStatus(ctx context.Context, input *GetRunnerStatusInput) (*GetRunnerStatusOutput, error) {
	status := h.jobService.RunnerStatus()
	if status == nil {
		return &GetRunnerStatusOutput{}, nil
	}
	return &GetRunnerStatusOutput{Body: *status}, nil
}

// GetJobInput is the input for getting a job.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the output for getting a job.
type GetJobOutput struct {
	Body JobResponse
}

// GetByID returns a job by ID.
func (h *JobHandler) GetByID(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}

	job, err := h.jobService.GetByID(ctx, id)
	if err != nil {
		return nil, serviceError("failed to get job", err)
	}

	return &GetJobOutput{
		Body: JobFromModel(job),
	}, nil
}

// DeleteJobInput is the input for deleting a job.
type DeleteJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// DeleteJobOutput is the output for deleting a job.
type DeleteJobOutput struct {
	Body struct {
		JobID   models.ULID   `json:"job_id"`
		TaskIDs []models.ULID `json:"task_ids"`
	}
}

// Delete deletes a job.
func (h *JobHandler) Delete(ctx context.Context, input *DeleteJobInput) (*DeleteJobOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}

	taskIDs, err := h.jobService.Delete(ctx, id)
	if err != nil {
		return nil, serviceError("failed to delete job", err)
	}

	resp := &DeleteJobOutput{}
	resp.Body.JobID = id
	resp.Body.TaskIDs = taskIDs
	if resp.Body.TaskIDs == nil {
		resp.Body.TaskIDs = []models.ULID{}
	}
	return resp, nil
}
