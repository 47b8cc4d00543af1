package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/dashingest/internal/ffmpeg"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/scheduler"
	"github.com/jmylchreest/dashingest/internal/service/progress"
	"github.com/jmylchreest/dashingest/internal/storage"
	"github.com/jmylchreest/dashingest/internal/transcode"
)

// BinaryDetector resolves the encoder and packager binaries.
type BinaryDetector interface {
	Detect(ctx context.Context) (*ffmpeg.BinaryInfo, error)
}

// ProcessRunner runs one external process, streaming its stderr lines.
type ProcessRunner interface {
	Run(ctx context.Context, cmd *ffmpeg.Command, onLine ffmpeg.LineHandler) error
}

// TranscodeService runs the tasks of transcode jobs: encode every ladder
// rung, package the renditions into a DASH manifest, promote the package and
// the original into the catalog trees, and record the catalog video.
type TranscodeService struct {
	jobRepo  repository.JobRepository
	taskRepo repository.TaskRepository
	catalog  *CatalogService
	binaries BinaryDetector
	runner   ProcessRunner
	promoter *storage.Promoter
	progress *progress.Service
	tempDir  string
	logger   *slog.Logger
}

// NewTranscodeService creates a new TranscodeService.
func NewTranscodeService(
	jobRepo repository.JobRepository,
	taskRepo repository.TaskRepository,
	catalog *CatalogService,
	binaries BinaryDetector,
	runner ProcessRunner,
	promoter *storage.Promoter,
	tempDir string,
) *TranscodeService {
	return &TranscodeService{
		jobRepo:  jobRepo,
		taskRepo: taskRepo,
		catalog:  catalog,
		binaries: binaries,
		runner:   runner,
		promoter: promoter,
		tempDir:  tempDir,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *TranscodeService) WithLogger(logger *slog.Logger) *TranscodeService {
	s.logger = logger
	return s
}

// WithProgress sets the live progress broadcaster.
func (s *TranscodeService) WithProgress(p *progress.Service) *TranscodeService {
	s.progress = p
	return s
}

// ProcessJob runs every runnable task of the job in order. A failing task is
// marked ERROR and the loop moves on; the job status is recomputed after
// each task. It satisfies scheduler.TranscodeFunc.
func (s *TranscodeService) ProcessJob(ctx context.Context, job *models.Job) (*scheduler.TranscodeResult, error) {
	// Task bookkeeping must land even after the job context is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	ids, err := s.taskRepo.GetIDsByStatus(ctx, job.ID, models.RunnableTaskStatuses...)
	if err != nil {
		return nil, err
	}

	result := &scheduler.TranscodeResult{}
	logger := s.logger.With(slog.String("job_id", job.ID.String()))

	binaries, detectErr := s.binaries.Detect(ctx)
	if detectErr != nil {
		logger.Error("transcode binaries unavailable", slog.Any("error", detectErr))
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			// Remaining tasks stay runnable for the next dispatch.
			break
		}

		task, err := s.taskRepo.GetByID(ctx, id)
		if err != nil {
			return result, err
		}
		if task == nil || !task.Status.IsRunnable() {
			continue
		}

		result.Processed++
		taskErr := detectErr
		lastProgress := task.Progress
		if taskErr == nil {
			reporter := s.newReporter(ctx, job.ID, task.ID)
			taskErr = s.processTask(ctx, job, task, binaries, reporter)
			lastProgress = reporter.current()
		}

		if taskErr != nil {
			result.Failed++
			logger.Error("transcode task failed",
				slog.String("task_id", task.ID.String()),
				slog.String("file", task.Settings.FilePath),
				slog.Any("error", taskErr))
			if err := s.taskRepo.SetError(storeCtx, task.ID, taskErr.Error()); err != nil {
				return result, err
			}
			s.publish(job.ID, task.ID, models.TaskStatusError, lastProgress, "", taskErr.Error())
		} else {
			result.Completed++
		}

		status, err := recomputeJobStatus(storeCtx, s.jobRepo, s.taskRepo, job.ID)
		if err != nil {
			return result, err
		}
		result.Status = status
	}

	if result.Processed == 0 {
		status, err := recomputeJobStatus(storeCtx, s.jobRepo, s.taskRepo, job.ID)
		if err != nil {
			return result, err
		}
		result.Status = status
	}

	return result, nil
}

// processTask runs one task to COMPLETED or returns the error that stopped it.
func (s *TranscodeService) processTask(ctx context.Context, job *models.Job, task *models.Task, binaries *ffmpeg.BinaryInfo, reporter *taskReporter) error {
	settings := task.Settings
	name := settings.OutputName()

	if err := s.taskRepo.UpdateStatus(ctx, task.ID, models.TaskStatusIncomplete); err != nil {
		return err
	}
	if err := s.taskRepo.UpdateProgress(ctx, task.ID, 0); err != nil {
		return err
	}
	reporter.setMessage("preparing destination")

	// Destination layout
	folder, paths, err := s.catalog.EnsureFolder(ctx, job.SourceDir)
	if err != nil {
		return err
	}
	subdirs, err := storage.RelativeSubdirs(job.SourceDir, settings.FilePath)
	if err != nil {
		return err
	}
	optimizedParent := filepath.Join(append([]string{paths.OptimizedDir}, subdirs...)...)
	originalParent := filepath.Join(append([]string{paths.OriginalDir}, subdirs...)...)

	if _, err := s.promoter.RemoveStale(filepath.Join(optimizedParent, name)); err != nil {
		return err
	}
	if err := storage.MakeSubdirs(paths.OptimizedDir, subdirs); err != nil {
		return err
	}
	if err := storage.MakeSubdirs(paths.OriginalDir, subdirs); err != nil {
		return err
	}

	workspace, err := storage.NewWorkspace(s.tempDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := workspace.Close(); err != nil {
			s.logger.Warn("failed to remove task workspace",
				slog.String("path", workspace.Dir()),
				slog.Any("error", err))
		}
	}()

	// Encode
	rungs := transcode.Plan(settings.InputHeight, settings.OutputFramerate)
	windows := transcode.Windows(rungs)
	inputs := make([]ffmpeg.PackageInput, 0, len(rungs))

	for i, rung := range rungs {
		output, err := workspace.ResolvePath(fmt.Sprintf("%s_%d.mp4", name, rung.Height))
		if err != nil {
			return err
		}
		reporter.setMessage(fmt.Sprintf("encoding %dp (%d/%d)", rung.Height, i+1, len(rungs)))

		cmd := ffmpeg.EncodeCommand(binaries.FFmpegPath, ffmpeg.EncodeSpec{
			Input:         settings.FilePath,
			Output:        output,
			Height:        rung.Height,
			BandwidthKbps: rung.Bandwidth,
			Framerate:     settings.OutputFramerate,
		})
		mapper := transcode.NewMapper(windows[i], settings.NumFrames, reporter)
		if err := s.runner.Run(ctx, cmd, func(line string) { mapper.Handle(line) }); err != nil {
			return fmt.Errorf("encoding %dp: %w", rung.Height, err)
		}
		inputs = append(inputs, ffmpeg.PackageInput{Path: output, Height: rung.Height})
	}

	// Package
	reporter.setMessage("packaging")
	packageDir, err := workspace.MkdirAll(name)
	if err != nil {
		return err
	}
	manifestName := name + ".mpd"
	cmd := ffmpeg.PackageCommand(binaries.MP4BoxPath, inputs, filepath.Join(packageDir, manifestName), manifestName)
	if err := s.runner.Run(ctx, cmd, nil); err != nil {
		return fmt.Errorf("packaging: %w", err)
	}

	// Promote
	reporter.setMessage("moving package")
	finalDir, err := s.promoter.MoveDir(ctx, packageDir, optimizedParent)
	if err != nil {
		return err
	}
	reporter.setMessage("backing up original")
	if _, err := s.promoter.CopyFile(ctx, settings.FilePath, originalParent); err != nil {
		return err
	}

	// Record
	manifestRel, err := filepath.Rel(paths.OptimizedDir, filepath.Join(finalDir, manifestName))
	if err != nil {
		return fmt.Errorf("resolving manifest path: %w", err)
	}
	if _, err := s.catalog.RecordVideo(ctx, folder.ID, filepath.Base(settings.FilePath), manifestRel, settings.OutputFramerate); err != nil {
		return err
	}

	if err := s.taskRepo.UpdateProgress(ctx, task.ID, 100); err != nil {
		return err
	}
	if err := s.taskRepo.UpdateStatus(ctx, task.ID, models.TaskStatusCompleted); err != nil {
		return err
	}
	s.publish(job.ID, task.ID, models.TaskStatusCompleted, 100, "", "")

	s.logger.Info("transcode task completed",
		slog.String("job_id", job.ID.String()),
		slog.String("task_id", task.ID.String()),
		slog.String("manifest", manifestRel),
		slog.Int("renditions", len(rungs)))
	return nil
}

func (s *TranscodeService) publish(jobID, taskID models.ULID, status models.TaskStatus, pct int, message, errMsg string) {
	if s.progress == nil {
		return
	}
	s.progress.Publish(progress.TaskProgress{
		JobID:    jobID,
		TaskID:   taskID,
		Status:   status,
		Progress: pct,
		Message:  message,
		Error:    errMsg,
	})
}

// taskReporter persists the progress of a running task. Every report at or
// above the last stored value is written; regressions are dropped so
// progress never moves backwards.
type taskReporter struct {
	ctx     context.Context
	service *TranscodeService
	jobID   models.ULID
	taskID  models.ULID

	mu      sync.Mutex
	last    int
	message string
}

func (s *TranscodeService) newReporter(ctx context.Context, jobID, taskID models.ULID) *taskReporter {
	return &taskReporter{ctx: ctx, service: s, jobID: jobID, taskID: taskID}
}

// ReportProgress implements transcode.ProgressReporter.
func (r *taskReporter) ReportProgress(value int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value < r.last {
		return
	}
	r.last = value
	if err := r.service.taskRepo.UpdateProgress(r.ctx, r.taskID, value); err != nil {
		r.service.logger.Warn("failed to store task progress",
			slog.String("task_id", r.taskID.String()),
			slog.Any("error", err))
	}
	r.service.publish(r.jobID, r.taskID, models.TaskStatusIncomplete, value, r.message, "")
}

// current returns the last value written for the task.
func (r *taskReporter) current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *taskReporter) setMessage(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.message = message
	if err := r.service.taskRepo.UpdateProgressMessage(r.ctx, r.taskID, message); err != nil {
		r.service.logger.Warn("failed to store task progress message",
			slog.String("task_id", r.taskID.String()),
			slog.Any("error", err))
	}
	r.service.publish(r.jobID, r.taskID, models.TaskStatusIncomplete, r.last, message, "")
}

var _ transcode.ProgressReporter = (*taskReporter)(nil)
