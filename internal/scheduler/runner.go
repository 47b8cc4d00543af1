package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
)

// StaleJobHandler is called for every job whose lock expired, after the lock
// has been released.
type StaleJobHandler func(ctx context.Context, job *models.Job) error

// Runner manages a bounded pool of workers that execute dispatched jobs.
// Each worker runs one job at a time, so the worker count caps the number of
// concurrent encoder processes.
type Runner struct {
	mu sync.RWMutex

	jobRepo  repository.JobRepository
	executor *Executor
	logger   *slog.Logger
	onStale  StaleJobHandler

	// Configuration
	workerCount   int
	pollInterval  time.Duration
	lockTimeout   time.Duration
	staleInterval time.Duration
	workerID      string
	jobTimeout    time.Duration

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	busy   map[string]models.ULID
}

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	// WorkerCount is the number of concurrent workers.
	// Default: 2
	WorkerCount int

	// PollInterval is how often idle workers poll for jobs.
	// Default: 5 seconds
	PollInterval time.Duration

	// LockTimeout is the duration after which a locked job is considered stale.
	// Default: 6 hours
	LockTimeout time.Duration

	// StaleCheckInterval is how often stale locks are looked for.
	// Default: 5 minutes
	StaleCheckInterval time.Duration

	// WorkerID is a unique identifier for this runner instance.
	// Default: derived from the start time
	WorkerID string

	// JobTimeout bounds a single job execution. Zero means no limit.
	JobTimeout time.Duration
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:        2,
		PollInterval:       5 * time.Second,
		LockTimeout:        6 * time.Hour,
		StaleCheckInterval: 5 * time.Minute,
		WorkerID:           fmt.Sprintf("worker-%d", time.Now().UnixNano()),
	}
}

// NewRunner creates a new job runner.
func NewRunner(jobRepo repository.JobRepository, executor *Executor) *Runner {
	config := DefaultRunnerConfig()
	return &Runner{
		jobRepo:       jobRepo,
		executor:      executor,
		logger:        slog.Default(),
		workerCount:   config.WorkerCount,
		pollInterval:  config.PollInterval,
		lockTimeout:   config.LockTimeout,
		staleInterval: config.StaleCheckInterval,
		workerID:      config.WorkerID,
		jobTimeout:    config.JobTimeout,
		busy:          make(map[string]models.ULID),
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithStaleHandler sets the hook run for jobs whose lock expired.
func (r *Runner) WithStaleHandler(fn StaleJobHandler) *Runner {
	r.onStale = fn
	return r
}

// WithConfig applies configuration to the runner.
func (r *Runner) WithConfig(config RunnerConfig) *Runner {
	if config.WorkerCount > 0 {
		r.workerCount = config.WorkerCount
	}
	if config.PollInterval > 0 {
		r.pollInterval = config.PollInterval
	}
	if config.LockTimeout > 0 {
		r.lockTimeout = config.LockTimeout
	}
	if config.StaleCheckInterval > 0 {
		r.staleInterval = config.StaleCheckInterval
	}
	if config.WorkerID != "" {
		r.workerID = config.WorkerID
	}
	if config.JobTimeout > 0 {
		r.jobTimeout = config.JobTimeout
	}
	return r
}

// Start begins the runner with the configured number of workers.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("runner already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < r.workerCount; i++ {
		workerID := fmt.Sprintf("%s-%d", r.workerID, i)
		r.wg.Add(1)
		go r.worker(workerID)
	}

	r.wg.Add(1)
	go r.recoverStaleJobs()

	r.logger.Info("runner started",
		slog.Int("workers", r.workerCount),
		slog.Duration("poll_interval", r.pollInterval),
		slog.String("worker_id", r.workerID))

	return nil
}

// Stop cancels running jobs and waits for workers to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	r.ctx = nil
	r.cancel = nil
	r.mu.Unlock()

	r.logger.Info("runner stopped")
}

// worker is the main worker loop.
func (r *Runner) worker(workerID string) {
	defer r.wg.Done()

	r.logger.Debug("worker started", slog.String("worker_id", workerID))

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("worker stopping", slog.String("worker_id", workerID))
			return
		default:
			if err := r.processJob(workerID); err != nil {
				if !errors.Is(err, errNoJobs) {
					r.logger.Error("error processing job",
						slog.String("worker_id", workerID),
						slog.Any("error", err))
				}

				select {
				case <-r.ctx.Done():
					return
				case <-time.After(r.pollInterval):
				}
			}
		}
	}
}

var errNoJobs = errors.New("no jobs available")

// processJob acquires and executes a single job.
func (r *Runner) processJob(workerID string) error {
	job, err := r.jobRepo.AcquireJob(r.ctx, workerID)
	if err != nil {
		return fmt.Errorf("acquiring job: %w", err)
	}

	if job == nil {
		return errNoJobs
	}

	r.logger.Debug("acquired job",
		slog.String("worker_id", workerID),
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)))

	r.setBusy(workerID, job.ID)
	defer r.setBusy(workerID, models.ULID{})

	jobCtx, cancel := r.jobContext()
	defer cancel()

	if err := r.executor.Execute(jobCtx, job); err != nil {
		return fmt.Errorf("executing job: %w", err)
	}

	return nil
}

func (r *Runner) jobContext() (context.Context, context.CancelFunc) {
	if r.jobTimeout > 0 {
		return context.WithTimeout(r.ctx, r.jobTimeout)
	}
	return context.WithCancel(r.ctx)
}

func (r *Runner) setBusy(workerID string, jobID models.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if jobID.IsZero() {
		delete(r.busy, workerID)
		return
	}
	r.busy[workerID] = jobID
}

// recoverStaleJobs periodically releases jobs that were locked but never
// finished. This happens when a worker dies without reaching FinishJob.
func (r *Runner) recoverStaleJobs() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.staleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.performStaleRecovery(r.ctx)
		}
	}
}

// performStaleRecovery releases jobs that have been locked longer than the
// lock timeout and hands them to the stale handler.
func (r *Runner) performStaleRecovery(ctx context.Context) int {
	cutoff := time.Now().Add(-r.lockTimeout)

	stale, err := r.jobRepo.GetStale(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to get stale jobs", slog.Any("error", err))
		return 0
	}

	recovered := 0
	for _, job := range stale {
		if r.ownsJob(job.ID) {
			continue
		}

		attrs := []any{
			slog.String("job_id", job.ID.String()),
			slog.String("locked_by", job.LockedBy),
		}
		if job.LockedAt != nil {
			attrs = append(attrs, slog.Time("locked_at", *job.LockedAt))
		}
		r.logger.Warn("recovering stale job", attrs...)

		if err := r.jobRepo.ReleaseJob(ctx, job.ID); err != nil {
			r.logger.Error("failed to release stale job",
				slog.String("job_id", job.ID.String()),
				slog.Any("error", err))
			continue
		}
		recovered++

		if r.onStale != nil {
			if err := r.onStale(ctx, job); err != nil {
				r.logger.Error("stale job handler failed",
					slog.String("job_id", job.ID.String()),
					slog.Any("error", err))
			}
		}
	}
	return recovered
}

// ownsJob reports whether one of this runner's workers is executing the job.
func (r *Runner) ownsJob(id models.ULID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, busy := range r.busy {
		if busy == id {
			return true
		}
	}
	return false
}

// GetStatus returns the current runner status.
func (r *Runner) GetStatus() RunnerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	running := r.ctx != nil && r.ctx.Err() == nil

	var heldCount, runningCount int64
	if running {
		held, _ := r.jobRepo.GetHeld(r.ctx)
		heldCount = int64(len(held))
		runningJobs, _ := r.jobRepo.GetRunning(r.ctx)
		runningCount = int64(len(runningJobs))
	}

	return RunnerStatus{
		Running:      running,
		WorkerCount:  r.workerCount,
		BusyWorkers:  len(r.busy),
		WorkerID:     r.workerID,
		HeldJobs:     heldCount,
		RunningJobs:  runningCount,
		PollInterval: r.pollInterval,
	}
}

// RunnerStatus represents the current state of the runner.
type RunnerStatus struct {
	Running      bool          `json:"running"`
	WorkerCount  int           `json:"worker_count"`
	BusyWorkers  int           `json:"busy_workers"`
	WorkerID     string        `json:"worker_id"`
	HeldJobs     int64         `json:"held_jobs"`
	RunningJobs  int64         `json:"running_jobs"`
	PollInterval time.Duration `json:"poll_interval"`
}
