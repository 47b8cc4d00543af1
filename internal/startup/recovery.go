package startup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
)

// InterruptedMessage is the error recorded on work cut short by a restart.
const InterruptedMessage = "interrupted by server restart"

// StatusRecomputer re-derives a job status from its tasks.
type StatusRecomputer interface {
	RecomputeStatus(ctx context.Context, id models.ULID) (models.JobStatus, error)
}

// RecoveryResult counts what RecoverInterruptedWork changed.
type RecoveryResult struct {
	Tasks int
	Jobs  int
}

// RecoverInterruptedWork settles work a previous process left running. Tasks
// still INCOMPLETE become ERROR so a restart can pick them up and every job
// lock is released. A released TRANSCODE job that still has runnable tasks is
// dispatched again; a released METADATA job is marked ERROR. Affected jobs
// get their status recomputed.
//
// It assumes a single dashingest process owns the database.
func RecoverInterruptedWork(
	ctx context.Context,
	logger *slog.Logger,
	jobRepo repository.JobRepository,
	taskRepo repository.TaskRepository,
	recomputer StatusRecomputer,
) (RecoveryResult, error) {
	var result RecoveryResult

	tasks, err := taskRepo.GetByStatus(ctx, models.TaskStatusIncomplete)
	if err != nil {
		return result, err
	}

	affected := make(map[models.ULID]struct{})
	for _, task := range tasks {
		if err := taskRepo.SetError(ctx, task.ID, InterruptedMessage); err != nil {
			return result, err
		}
		logger.Warn("recovered interrupted task",
			slog.String("job_id", task.JobID.String()),
			slog.String("task_id", task.ID.String()),
			slog.Int("progress", task.Progress))
		affected[task.JobID] = struct{}{}
		result.Tasks++
	}

	running, err := jobRepo.GetRunning(ctx)
	if err != nil {
		return result, err
	}
	for _, job := range running {
		if err := jobRepo.ReleaseJob(ctx, job.ID); err != nil {
			return result, err
		}
		if job.Type == models.JobTypeMetadata {
			if err := jobRepo.SetResult(ctx, job.ID, models.JobStatusError, "", InterruptedMessage); err != nil {
				return result, err
			}
		} else {
			affected[job.ID] = struct{}{}
			runnable, err := taskRepo.GetIDsByStatus(ctx, job.ID, models.RunnableTaskStatuses...)
			if err != nil {
				return result, err
			}
			if len(runnable) > 0 {
				if err := jobRepo.Dispatch(ctx, job.ID, time.Now()); err != nil {
					return result, err
				}
			}
		}
		logger.Warn("released interrupted job",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.String("locked_by", job.LockedBy))
	}
	result.Jobs = len(running)

	for id := range affected {
		if _, err := recomputer.RecomputeStatus(ctx, id); err != nil {
			return result, err
		}
	}

	return result, nil
}
