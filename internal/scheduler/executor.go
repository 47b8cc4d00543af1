package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
)

// JobHandler defines the interface for handling specific job types.
// Handlers own the status of the job and its tasks; the executor only
// releases the job lock afterwards.
type JobHandler interface {
	// Execute runs the job and returns a result string or error.
	Execute(ctx context.Context, job *models.Job) (string, error)
}

// TranscodeResult holds the outcome of one pass over a transcode job's tasks.
type TranscodeResult struct {
	Processed int
	Completed int
	Failed    int
	Status    models.JobStatus
}

// TranscodeFunc processes the runnable tasks of a transcode job.
type TranscodeFunc func(ctx context.Context, job *models.Job) (*TranscodeResult, error)

// MetadataParseService defines the service interface for metadata jobs.
type MetadataParseService interface {
	// ParseJob probes every video of the job's source folder and stores the
	// results as job data. Returns the number of videos parsed.
	ParseJob(ctx context.Context, job *models.Job) (int, error)
}

// TranscodeHandler handles transcode jobs.
type TranscodeHandler struct {
	transcodeFunc TranscodeFunc
}

// NewTranscodeHandler creates a new handler for transcode jobs.
func NewTranscodeHandler(fn TranscodeFunc) *TranscodeHandler {
	return &TranscodeHandler{transcodeFunc: fn}
}

// Execute runs a transcode job.
func (h *TranscodeHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	result, err := h.transcodeFunc(ctx, job)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("processed %d tasks (%d completed, %d failed), job %s",
		result.Processed, result.Completed, result.Failed, result.Status), nil
}

// MetadataHandler handles metadata jobs.
type MetadataHandler struct {
	parseService MetadataParseService
}

// NewMetadataHandler creates a new handler for metadata jobs.
func NewMetadataHandler(service MetadataParseService) *MetadataHandler {
	return &MetadataHandler{parseService: service}
}

// Execute runs a metadata job.
func (h *MetadataHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	count, err := h.parseService.ParseJob(ctx, job)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", job.SourceDir, err)
	}
	return fmt.Sprintf("parsed %d videos in %s", count, job.SourceDir), nil
}

// Executor dispatches jobs to the appropriate handlers.
type Executor struct {
	handlers map[models.JobType]JobHandler
	jobRepo  repository.JobRepository
	logger   *slog.Logger
}

// NewExecutor creates a new job executor.
func NewExecutor(jobRepo repository.JobRepository) *Executor {
	return &Executor{
		handlers: make(map[models.JobType]JobHandler),
		jobRepo:  jobRepo,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// RegisterHandler registers a handler for a job type.
func (e *Executor) RegisterHandler(jobType models.JobType, handler JobHandler) {
	e.handlers[jobType] = handler
}

// Execute runs a job and releases its lock, whatever the outcome.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	// The lock must be released even when the run was cancelled.
	finishCtx := context.WithoutCancel(ctx)

	handler, ok := e.handlers[job.Type]
	if !ok {
		if err := e.jobRepo.FinishJob(finishCtx, job); err != nil {
			e.logger.Error("failed to release job",
				slog.String("job_id", job.ID.String()),
				slog.Any("error", err))
		}
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	e.logger.Info("executing job",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
		slog.String("source_dir", job.SourceDir))

	result, err := handler.Execute(ctx, job)

	if err != nil {
		e.logger.Error("job failed",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.Any("error", err))
	} else {
		e.logger.Info("job finished",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.String("result", result))
	}

	if err := e.jobRepo.FinishJob(finishCtx, job); err != nil {
		e.logger.Error("failed to release job",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
		return fmt.Errorf("finishing job: %w", err)
	}

	return nil
}
