package handlers_test

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tasksResponse struct {
	JobID  models.ULID              `json:"job_id"`
	Status models.JobStatus         `json:"status"`
	Tasks  []service.TaskStatusView `json:"tasks"`
}

func TestTranscodeHandler_Submit(t *testing.T) {
	t.Run("creates a dispatched job with one task per file", func(t *testing.T) {
		a := newTestAPI(t)
		dir, paths := a.makeSource(t, "2023-05-01-AB", "a.mp4", "sub/b.mp4")

		rec := a.do(t, http.MethodPost, "/api/v1/transcode", map[string]any{
			"source_dir": dir,
			"settings": []map[string]any{
				{"file_path": paths[0], "input_height": 540, "num_frames": 400},
				{"file_path": paths[1]},
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			JobID models.ULID `json:"job_id"`
			Job   struct {
				Type   models.JobType   `json:"type"`
				Status models.JobStatus `json:"status"`
				Held   bool             `json:"held"`
			} `json:"job"`
		}
		decode(t, rec, &resp)
		assert.False(t, resp.JobID.IsZero())
		assert.Equal(t, models.JobTypeTranscode, resp.Job.Type)
		assert.Equal(t, models.JobStatusQueued, resp.Job.Status)
		assert.False(t, resp.Job.Held)

		rec = a.do(t, http.MethodGet, "/api/v1/transcode/"+resp.JobID.String()+"/tasks", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var tasks tasksResponse
		decode(t, rec, &tasks)
		assert.Equal(t, resp.JobID, tasks.JobID)
		assert.Equal(t, models.JobStatusQueued, tasks.Status)
		require.Len(t, tasks.Tasks, 2)

		byPath := map[string]service.TaskStatusView{}
		for _, task := range tasks.Tasks {
			byPath[task.FilePath] = task
			assert.Equal(t, models.TaskStatusQueued, task.Status)
			assert.Equal(t, 0, task.Progress)
		}
		assert.InDelta(t, 100.0, byPath[paths[0]].Size, 0.001)
		assert.InDelta(t, 1.0, byPath[paths[1]].Size, 0.001)
	})

	t.Run("held job waits for the queue", func(t *testing.T) {
		a := newTestAPI(t)
		dir, paths := a.makeSource(t, "2023-05-01-AB", "a.mp4")
		id := a.submit(t, dir, true, paths...)

		job, err := a.jobRepo.GetByID(a.ctx, id)
		require.NoError(t, err)
		assert.True(t, job.IsHeld())
	})

	tests := []struct {
		name   string
		body   func(a *testAPI, dir string) map[string]any
		status int
	}{
		{
			name: "relative source dir",
			body: func(a *testAPI, dir string) map[string]any {
				return map[string]any{
					"source_dir": "relative/2023-05-01-AB",
					"settings":   []map[string]any{{"file_path": filepath.Join(dir, "a.mp4")}},
				}
			},
			status: http.StatusBadRequest,
		},
		{
			name: "missing file",
			body: func(a *testAPI, dir string) map[string]any {
				return map[string]any{
					"source_dir": dir,
					"settings":   []map[string]any{{"file_path": filepath.Join(dir, "missing.mp4")}},
				}
			},
			status: http.StatusBadRequest,
		},
		{
			name: "relative file path",
			body: func(a *testAPI, dir string) map[string]any {
				return map[string]any{
					"source_dir": dir,
					"settings":   []map[string]any{{"file_path": "a.mp4"}},
				}
			},
			status: http.StatusBadRequest,
		},
		{
			name: "no settings",
			body: func(a *testAPI, dir string) map[string]any {
				return map[string]any{
					"source_dir": dir,
					"settings":   []map[string]any{},
				}
			},
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI(t)
			dir, _ := a.makeSource(t, "2023-05-01-AB", "a.mp4")

			rec := a.do(t, http.MethodPost, "/api/v1/transcode", tt.body(a, dir))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			jobs, err := a.jobRepo.GetAll(a.ctx)
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestTranscodeHandler_GetTasks(t *testing.T) {
	a := newTestAPI(t)

	t.Run("unknown job", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/transcode/"+models.NewULID().String()+"/tasks", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/v1/transcode/not-a-ulid/tasks", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTranscodeHandler_Restart(t *testing.T) {
	t.Run("resets failed tasks and keeps completed ones", func(t *testing.T) {
		a := newTestAPI(t)
		dir, paths := a.makeSource(t, "2023-05-01-AB", "a.mp4", "b.mp4")
		id := a.submit(t, dir, false, paths...)

		tasks, err := a.taskRepo.GetByJobID(a.ctx, id)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		require.NoError(t, a.taskRepo.SetError(a.ctx, tasks[0].ID, "encoder crashed"))
		require.NoError(t, a.taskRepo.UpdateStatus(a.ctx, tasks[1].ID, models.TaskStatusCompleted))
		_, err = a.jobs.RecomputeStatus(a.ctx, id)
		require.NoError(t, err)

		rec := a.do(t, http.MethodPost, "/api/v1/transcode/"+id.String()+"/restart", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			JobID      models.ULID `json:"job_id"`
			TasksReset int64       `json:"tasks_reset"`
		}
		decode(t, rec, &resp)
		assert.Equal(t, id, resp.JobID)
		assert.Equal(t, int64(1), resp.TasksReset)

		restarted, err := a.taskRepo.GetByID(a.ctx, tasks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusPending, restarted.Status)
		assert.Empty(t, restarted.ErrorMessage)

		completed, err := a.taskRepo.GetByID(a.ctx, tasks[1].ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, completed.Status)
	})

	t.Run("metadata jobs cannot be restarted", func(t *testing.T) {
		a := newTestAPI(t)
		dir, _ := a.makeSource(t, "2023-05-01-AB", "a.mp4")
		job, err := a.ingest.SubmitParse(a.ctx, dir)
		require.NoError(t, err)

		rec := a.do(t, http.MethodPost, "/api/v1/transcode/"+job.ID.String()+"/restart", nil)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	})

	t.Run("unknown job", func(t *testing.T) {
		a := newTestAPI(t)
		rec := a.do(t, http.MethodPost, "/api/v1/transcode/"+models.NewULID().String()+"/restart", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
