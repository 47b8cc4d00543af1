package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
)

// mockJobRepo implements repository.JobRepository for testing.
type mockJobRepo struct {
	mu         sync.Mutex
	jobs       map[models.ULID]*models.Job
	acquireErr error
	finished   []models.ULID
	released   []models.ULID
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{
		jobs: make(map[models.ULID]*models.Job),
	}
}

func (m *mockJobRepo) add(job *models.Job) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID.IsZero() {
		job.ID = models.NewULID()
	}
	m.jobs[job.ID] = job
	return job
}

func (m *mockJobRepo) get(id models.ULID) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := *m.jobs[id]
	return &job
}

func (m *mockJobRepo) finishedIDs() []models.ULID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ULID(nil), m.finished...)
}

func (m *mockJobRepo) Create(ctx context.Context, job *models.Job) error {
	m.add(job)
	return nil
}

func (m *mockJobRepo) CreateWithTasks(ctx context.Context, job *models.Job, tasks []*models.Task) error {
	m.add(job)
	return nil
}

func (m *mockJobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id], nil
}

func (m *mockJobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		result = append(result, job)
	}
	return result, nil
}

func (m *mockJobRepo) GetByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		if job.Type == jobType {
			result = append(result, job)
		}
	}
	return result, nil
}

func (m *mockJobRepo) GetRunning(ctx context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		if job.IsRunning() {
			result = append(result, job)
		}
	}
	return result, nil
}

func (m *mockJobRepo) GetHeld(ctx context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		if job.IsHeld() {
			result = append(result, job)
		}
	}
	return result, nil
}

func (m *mockJobRepo) GetStale(ctx context.Context, lockedBefore time.Time) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Job
	for _, job := range m.jobs {
		if job.IsRunning() && job.LockedAt != nil && job.LockedAt.Before(lockedBefore) {
			copied := *job
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockJobRepo) Update(ctx context.Context, job *models.Job) error {
	m.add(job)
	return nil
}

func (m *mockJobRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (m *mockJobRepo) SetResult(ctx context.Context, id models.ULID, status models.JobStatus, data string, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Status = status
		job.Data = data
		job.ErrorMessage = errorMessage
	}
	return nil
}

func (m *mockJobRepo) Dispatch(ctx context.Context, id models.ULID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Dispatch(at)
	}
	return nil
}

func (m *mockJobRepo) DispatchHeld(ctx context.Context, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, job := range m.jobs {
		if job.IsHeld() {
			job.Dispatch(at)
			n++
		}
	}
	return n, nil
}

func (m *mockJobRepo) Delete(ctx context.Context, id models.ULID) ([]models.ULID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil, nil
}

func (m *mockJobRepo) AcquireJob(ctx context.Context, workerID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	now := time.Now()
	for _, job := range m.jobs {
		if job.NextRunAt != nil && !job.NextRunAt.After(now) && !job.IsRunning() {
			job.MarkRunning(workerID)
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockJobRepo) FinishJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.MarkFinished()
	if stored, ok := m.jobs[job.ID]; ok {
		stored.CompletedAt = job.CompletedAt
		stored.DurationMs = job.DurationMs
		stored.LockedBy = ""
		stored.LockedAt = nil
	}
	m.finished = append(m.finished, job.ID)
	return nil
}

func (m *mockJobRepo) ReleaseJob(ctx context.Context, id models.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.LockedBy = ""
		job.LockedAt = nil
	}
	m.released = append(m.released, id)
	return nil
}

var _ repository.JobRepository = (*mockJobRepo)(nil)

// mockScheduleRepo implements repository.ScheduleRepository for testing.
type mockScheduleRepo struct {
	schedule *models.QueueSchedule
	cleared  int
	err      error
}

func (m *mockScheduleRepo) Get(ctx context.Context) (*models.QueueSchedule, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.schedule, nil
}

func (m *mockScheduleRepo) Replace(ctx context.Context, schedule *models.QueueSchedule) error {
	if schedule.ID.IsZero() {
		schedule.ID = models.NewULID()
	}
	m.schedule = schedule
	return nil
}

func (m *mockScheduleRepo) Clear(ctx context.Context) error {
	m.schedule = nil
	m.cleared++
	return nil
}

func (m *mockScheduleRepo) MarkRun(ctx context.Context, id models.ULID, at time.Time) error {
	if m.schedule != nil && m.schedule.ID == id {
		m.schedule.LastRunAt = &at
	}
	return nil
}

var _ repository.ScheduleRepository = (*mockScheduleRepo)(nil)

// mockStarter implements QueueStarter for testing.
type mockStarter struct {
	calls int
	err   error
}

func (m *mockStarter) StartQueue(ctx context.Context) (int64, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return 3, nil
}
