package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/dashingest/internal/service"
)

// QueueHandler handles held jobs and the queue schedule.
type QueueHandler struct {
	jobService      *service.JobService
	scheduleService *service.ScheduleService
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(jobService *service.JobService, scheduleService *service.ScheduleService) *QueueHandler {
	return &QueueHandler{
		jobService:      jobService,
		scheduleService: scheduleService,
	}
}

// Register registers the queue routes with the API.
func (h *QueueHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listHeldJobs",
		Method:      "GET",
		Path:        "/api/v1/queue",
		Summary:     "List held jobs",
		Description: "Returns the jobs waiting for the queue to start",
		Tags:        []string{"Queue"},
	}, h.ListHeld)

	huma.Register(api, huma.Operation{
		OperationID: "startQueue",
		Method:      "POST",
		Path:        "/api/v1/queue/start",
		Summary:     "Start queue",
		Description: "Dispatches every held job now",
		Tags:        []string{"Queue"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "getQueueSchedule",
		Method:      "GET",
		Path:        "/api/v1/queue/schedule",
		Summary:     "Get queue schedule",
		Description: "Returns the schedule that starts the queue and its next trigger",
		Tags:        []string{"Queue"},
	}, h.GetSchedule)

	huma.Register(api, huma.Operation{
		OperationID: "setQueueSchedule",
		Method:      "PUT",
		Path:        "/api/v1/queue/schedule",
		Summary:     "Set queue schedule",
		Description: "Replaces the queue schedule with a one-shot run_at or a 5-field cron expression",
		Tags:        []string{"Queue"},
	}, h.SetSchedule)

	huma.Register(api, huma.Operation{
		OperationID:   "clearQueueSchedule",
		Method:        "DELETE",
		Path:          "/api/v1/queue/schedule",
		Summary:       "Clear queue schedule",
		Description:   "Removes the queue schedule",
		Tags:          []string{"Queue"},
		DefaultStatus: 204,
	}, h.ClearSchedule)
}

// ListHeldInput is the input for listing held jobs.
type ListHeldInput struct{}

// ListHeld returns the held jobs.
func (h *QueueHandler) ListHeld(ctx context.Context, input *ListHeldInput) (*ListJobsOutput, error) {
	jobs, err := h.jobService.GetHeld(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list held jobs", err)
	}
	resp := &ListJobsOutput{}
	resp.Body.Jobs = JobsFromModels(jobs)
	return resp, nil
}

// StartQueueInput is the input for starting the queue.
type StartQueueInput struct{}

// StartQueueOutput is the output for starting the queue.
type StartQueueOutput struct {
	Body struct {
		Dispatched int64 `json:"dispatched"`
	}
}

// Start dispatches every held job.
func (h *QueueHandler) Start(ctx context.Context, input *StartQueueInput) (*StartQueueOutput, error) {
	n, err := h.jobService.StartQueue(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to start queue", err)
	}
	resp := &StartQueueOutput{}
	resp.Body.Dispatched = n
	return resp, nil
}

// GetScheduleInput is the input for getting the queue schedule.
type GetScheduleInput struct{}

// ScheduleOutput carries a queue schedule.
type ScheduleOutput struct {
	Body *service.ScheduleView
}

// GetSchedule returns the queue schedule.
func (h *QueueHandler) GetSchedule(ctx context.Context, input *GetScheduleInput) (*ScheduleOutput, error) {
	view, err := h.scheduleService.Get(ctx)
	if err != nil {
		return nil, serviceError("failed to get queue schedule", err)
	}
	return &ScheduleOutput{Body: view}, nil
}

// SetScheduleInput is the input for setting the queue schedule.
type SetScheduleInput struct {
	Body struct {
		RunAt        *time.Time `json:"run_at,omitempty" doc:"One-shot start time (RFC 3339)"`
		CronSchedule string     `json:"cron_schedule,omitempty" doc:"5-field cron expression, e.g. '0 2 * * *'"`
	}
}

// SetSchedule replaces the queue schedule.
func (h *QueueHandler) SetSchedule(ctx context.Context, input *SetScheduleInput) (*ScheduleOutput, error) {
	view, err := h.scheduleService.Set(ctx, service.ScheduleRequest{
		RunAt:        input.Body.RunAt,
		CronSchedule: input.Body.CronSchedule,
	})
	if err != nil {
		return nil, serviceError("failed to set queue schedule", err)
	}
	return &ScheduleOutput{Body: view}, nil
}

// ClearScheduleInput is the input for clearing the queue schedule.
type ClearScheduleInput struct{}

// ClearScheduleOutput is the output for clearing the queue schedule.
type ClearScheduleOutput struct{}

// ClearSchedule removes the queue schedule.
func (h *QueueHandler) ClearSchedule(ctx context.Context, input *ClearScheduleInput) (*ClearScheduleOutput, error) {
	if err := h.scheduleService.Clear(ctx); err != nil {
		return nil, huma.Error500InternalServerError("failed to clear queue schedule", err)
	}
	return &ClearScheduleOutput{}, nil
}
