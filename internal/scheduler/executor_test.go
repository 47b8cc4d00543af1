package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockJobHandler implements JobHandler for testing.
type mockJobHandler struct {
	executeResult string
	executeErr    error
	executeCalled bool
	sawCancelled  bool
}

func (m *mockJobHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	m.executeCalled = true
	m.sawCancelled = ctx.Err() != nil
	return m.executeResult, m.executeErr
}

// mockParseService implements MetadataParseService for testing.
type mockParseService struct {
	count int
	err   error
	jobID models.ULID
}

func (m *mockParseService) ParseJob(ctx context.Context, job *models.Job) (int, error) {
	m.jobID = job.ID
	return m.count, m.err
}

func runningJob(repo *mockJobRepo, jobType models.JobType) *models.Job {
	job := repo.add(&models.Job{Type: jobType, SourceDir: "/ingest/2023-05-01-AB"})
	job.MarkRunning("worker-0")
	copied := *job
	return &copied
}

func TestExecutor_RegisterHandler(t *testing.T) {
	executor := NewExecutor(newMockJobRepo())

	handler := &mockJobHandler{}
	executor.RegisterHandler(models.JobTypeTranscode, handler)

	assert.NotNil(t, executor.handlers[models.JobTypeTranscode])
	assert.Nil(t, executor.handlers[models.JobTypeMetadata])
}

func TestExecutor_Execute_Success(t *testing.T) {
	jobRepo := newMockJobRepo()
	executor := NewExecutor(jobRepo).WithLogger(quietLogger())

	handler := &mockJobHandler{executeResult: "done"}
	executor.RegisterHandler(models.JobTypeTranscode, handler)

	job := runningJob(jobRepo, models.JobTypeTranscode)
	require.NoError(t, executor.Execute(context.Background(), job))

	assert.True(t, handler.executeCalled)
	assert.Equal(t, []models.ULID{job.ID}, jobRepo.finishedIDs())

	stored := jobRepo.get(job.ID)
	assert.False(t, stored.IsRunning())
	assert.NotNil(t, stored.CompletedAt)
}

func TestExecutor_Execute_HandlerErrorStillReleases(t *testing.T) {
	jobRepo := newMockJobRepo()
	executor := NewExecutor(jobRepo).WithLogger(quietLogger())

	handler := &mockJobHandler{executeErr: errors.New("database unavailable")}
	executor.RegisterHandler(models.JobTypeTranscode, handler)

	job := runningJob(jobRepo, models.JobTypeTranscode)
	require.NoError(t, executor.Execute(context.Background(), job))

	assert.Equal(t, []models.ULID{job.ID}, jobRepo.finishedIDs())
	assert.False(t, jobRepo.get(job.ID).IsRunning())
}

func TestExecutor_Execute_CancelledContextStillReleases(t *testing.T) {
	jobRepo := newMockJobRepo()
	executor := NewExecutor(jobRepo).WithLogger(quietLogger())

	handler := &mockJobHandler{executeErr: context.Canceled}
	executor.RegisterHandler(models.JobTypeMetadata, handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := runningJob(jobRepo, models.JobTypeMetadata)
	require.NoError(t, executor.Execute(ctx, job))

	assert.True(t, handler.sawCancelled)
	assert.Equal(t, []models.ULID{job.ID}, jobRepo.finishedIDs())
}

func TestExecutor_Execute_NoHandler(t *testing.T) {
	jobRepo := newMockJobRepo()
	executor := NewExecutor(jobRepo).WithLogger(quietLogger())

	job := runningJob(jobRepo, models.JobTypeMetadata)
	err := executor.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler registered")

	assert.Equal(t, []models.ULID{job.ID}, jobRepo.finishedIDs())
}

func TestTranscodeHandler(t *testing.T) {
	var seen models.ULID
	handler := NewTranscodeHandler(func(ctx context.Context, job *models.Job) (*TranscodeResult, error) {
		seen = job.ID
		return &TranscodeResult{Processed: 3, Completed: 2, Failed: 1, Status: models.JobStatusError}, nil
	})

	job := &models.Job{Type: models.JobTypeTranscode}
	job.ID = models.NewULID()

	result, err := handler.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, seen)
	assert.Equal(t, "processed 3 tasks (2 completed, 1 failed), job ERROR", result)

	failing := NewTranscodeHandler(func(ctx context.Context, job *models.Job) (*TranscodeResult, error) {
		return nil, errors.New("no settings")
	})
	_, err = failing.Execute(context.Background(), job)
	assert.EqualError(t, err, "no settings")
}

func TestMetadataHandler(t *testing.T) {
	service := &mockParseService{count: 4}
	handler := NewMetadataHandler(service)

	job := &models.Job{Type: models.JobTypeMetadata, SourceDir: "/ingest/2023-05-01-AB"}
	job.ID = models.NewULID()

	result, err := handler.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, service.jobID)
	assert.Equal(t, "parsed 4 videos in /ingest/2023-05-01-AB", result)

	service.err = errors.New("permission denied")
	_, err = handler.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing /ingest/2023-05-01-AB")
}

func TestRunner_ExecutesDispatchedJobs(t *testing.T) {
	jobRepo := newMockJobRepo()
	executor := NewExecutor(jobRepo).WithLogger(quietLogger())

	done := make(chan models.ULID, 4)
	executor.RegisterHandler(models.JobTypeTranscode, NewTranscodeHandler(func(ctx context.Context, job *models.Job) (*TranscodeResult, error) {
		done <- job.ID
		return &TranscodeResult{Status: models.JobStatusCompleted}, nil
	}))

	now := time.Now()
	dispatched := jobRepo.add(&models.Job{Type: models.JobTypeTranscode, NextRunAt: &now})
	held := jobRepo.add(&models.Job{Type: models.JobTypeTranscode})

	runner := NewRunner(jobRepo, executor).
		WithLogger(quietLogger()).
		WithConfig(RunnerConfig{WorkerCount: 2, PollInterval: 10 * time.Millisecond})

	require.NoError(t, runner.Start(context.Background()))
	defer runner.Stop()

	select {
	case id := <-done:
		assert.Equal(t, dispatched.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched job was not executed")
	}

	require.Eventually(t, func() bool {
		return len(jobRepo.finishedIDs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Held jobs wait for the queue to be started.
	select {
	case id := <-done:
		t.Fatalf("unexpected execution of %s", id)
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, jobRepo.get(held.ID).IsHeld())
}

func TestRunner_StartStop(t *testing.T) {
	jobRepo := newMockJobRepo()
	runner := NewRunner(jobRepo, NewExecutor(jobRepo)).
		WithLogger(quietLogger()).
		WithConfig(RunnerConfig{WorkerCount: 1, PollInterval: 10 * time.Millisecond})

	require.NoError(t, runner.Start(context.Background()))
	assert.Error(t, runner.Start(context.Background()), "double start")
	assert.True(t, runner.GetStatus().Running)

	runner.Stop()
	assert.False(t, runner.GetStatus().Running)

	require.NoError(t, runner.Start(context.Background()))
	runner.Stop()
}

func TestRunner_StopCancelsRunningJob(t *testing.T) {
	jobRepo := newMockJobRepo()
	executor := NewExecutor(jobRepo).WithLogger(quietLogger())

	started := make(chan struct{})
	executor.RegisterHandler(models.JobTypeTranscode, NewTranscodeHandler(func(ctx context.Context, job *models.Job) (*TranscodeResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	now := time.Now()
	job := jobRepo.add(&models.Job{Type: models.JobTypeTranscode, NextRunAt: &now})

	runner := NewRunner(jobRepo, executor).
		WithLogger(quietLogger()).
		WithConfig(RunnerConfig{WorkerCount: 1, PollInterval: 10 * time.Millisecond})
	require.NoError(t, runner.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not started")
	}

	status := runner.GetStatus()
	assert.Equal(t, 1, status.BusyWorkers)
	assert.Equal(t, int64(1), status.RunningJobs)

	runner.Stop()

	assert.Equal(t, []models.ULID{job.ID}, jobRepo.finishedIDs())
	assert.False(t, jobRepo.get(job.ID).IsRunning())
}

func TestRunner_AcquireErrorKeepsPolling(t *testing.T) {
	jobRepo := newMockJobRepo()
	jobRepo.acquireErr = errors.New("database is locked")

	runner := NewRunner(jobRepo, NewExecutor(jobRepo)).
		WithLogger(quietLogger()).
		WithConfig(RunnerConfig{WorkerCount: 1, PollInterval: 5 * time.Millisecond})

	require.NoError(t, runner.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	runner.Stop()

	assert.False(t, runner.GetStatus().Running)
}

func TestRunner_StaleRecovery(t *testing.T) {
	jobRepo := newMockJobRepo()

	stale := jobRepo.add(&models.Job{Type: models.JobTypeTranscode})
	stale.MarkRunning("crashed-worker")
	old := time.Now().Add(-7 * time.Hour)
	stale.LockedAt = &old

	fresh := jobRepo.add(&models.Job{Type: models.JobTypeTranscode})
	fresh.MarkRunning("live-worker")

	var handled []models.ULID
	runner := NewRunner(jobRepo, NewExecutor(jobRepo)).
		WithLogger(quietLogger()).
		WithConfig(RunnerConfig{LockTimeout: 6 * time.Hour}).
		WithStaleHandler(func(ctx context.Context, job *models.Job) error {
			handled = append(handled, job.ID)
			return nil
		})

	recovered := runner.performStaleRecovery(context.Background())

	assert.Equal(t, 1, recovered)
	assert.Equal(t, []models.ULID{stale.ID}, handled)
	assert.False(t, jobRepo.get(stale.ID).IsRunning())
	assert.True(t, jobRepo.get(fresh.ID).IsRunning())
}

func TestRunner_StaleRecoverySkipsOwnJobs(t *testing.T) {
	jobRepo := newMockJobRepo()

	job := jobRepo.add(&models.Job{Type: models.JobTypeTranscode})
	job.MarkRunning("worker-0")
	old := time.Now().Add(-7 * time.Hour)
	job.LockedAt = &old

	runner := NewRunner(jobRepo, NewExecutor(jobRepo)).
		WithLogger(quietLogger()).
		WithConfig(RunnerConfig{LockTimeout: 6 * time.Hour})
	runner.setBusy("worker-0", job.ID)

	assert.Zero(t, runner.performStaleRecovery(context.Background()))
	assert.True(t, jobRepo.get(job.ID).IsRunning())
}
