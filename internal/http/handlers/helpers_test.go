package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/dashingest/internal/ffmpeg"
	"github.com/jmylchreest/dashingest/internal/http/handlers"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/scheduler"
	"github.com/jmylchreest/dashingest/internal/service"
	"github.com/jmylchreest/dashingest/internal/service/logs"
	"github.com/jmylchreest/dashingest/internal/service/progress"
	"github.com/jmylchreest/dashingest/internal/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubProber reports one 1080p30 video stream for every file.
type stubProber struct{}

func (stubProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	return &ffmpeg.ProbeResult{Streams: []ffmpeg.ProbeStream{{
		CodecType:  "video",
		Width:      1920,
		Height:     1080,
		RFrameRate: "30/1",
		Duration:   "12.5",
	}}}, nil
}

type testAPI struct {
	router *chi.Mux
	ctx    context.Context

	db          *gorm.DB
	jobRepo     repository.JobRepository
	taskRepo    repository.TaskRepository
	catalogRepo repository.CatalogRepository

	jobs      *service.JobService
	settings  *service.SettingsService
	catalog   *service.CatalogService
	ingest    *service.IngestService
	schedules *service.ScheduleService
	progress  *progress.Service
	logs      *logs.Service

	optimizedRoot string
	originalRoot  string
	sourceRoot    string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ctx := context.Background()
	quiet := testutil.QuietLogger()
	db := testutil.NewTestDB(t)

	jobRepo := repository.NewJobRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	root := t.TempDir()
	a := &testAPI{
		router:        chi.NewRouter(),
		ctx:           ctx,
		db:            db,
		jobRepo:       jobRepo,
		taskRepo:      taskRepo,
		catalogRepo:   catalogRepo,
		progress:      progress.NewService(quiet),
		logs:          logs.New(50),
		optimizedRoot: filepath.Join(root, "optimized"),
		originalRoot:  filepath.Join(root, "original"),
		sourceRoot:    filepath.Join(root, "incoming"),
	}
	require.NoError(t, os.MkdirAll(a.sourceRoot, 0o755))

	a.settings = service.NewSettingsService(settingRepo).WithLogger(quiet)
	require.NoError(t, a.settings.Set(ctx, string(models.SettingOptimizedVideosDir), a.optimizedRoot))
	require.NoError(t, a.settings.Set(ctx, string(models.SettingOriginalVideosDir), a.originalRoot))

	a.jobs = service.NewJobService(jobRepo, taskRepo, a.settings).WithLogger(quiet)
	a.catalog = service.NewCatalogService(catalogRepo, a.settings).WithLogger(quiet)
	a.ingest = service.NewIngestService(jobRepo, stubProber{}).WithLogger(quiet)
	sched := scheduler.NewScheduler(scheduleRepo, a.jobs).WithLogger(quiet)
	a.schedules = service.NewScheduleService(scheduleRepo, sched).WithLogger(quiet)

	api := humachi.New(a.router, huma.DefaultConfig("Test API", "1.0.0"))
	handlers.NewTranscodeHandler(a.jobs).Register(api)
	handlers.NewJobHandler(a.jobs).Register(api)
	handlers.NewQueueHandler(a.jobs, a.schedules).Register(api)
	handlers.NewIngestHandler(a.ingest).Register(api)
	handlers.NewSettingsHandler(a.settings).Register(api)
	handlers.NewCatalogHandler(a.catalog).Register(api)
	handlers.NewLogsHandler(a.logs).Register(api)
	handlers.NewHealthHandler("test").WithDB(db).WithRunner(a.jobs).Register(api)
	progressHandler := handlers.NewProgressHandler(a.progress)
	progressHandler.Register(api)
	progressHandler.RegisterSSE(a.router)

	return a
}

// do sends a JSON request and returns the recorded response.
func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// makeSource creates an observation folder holding the given files.
func (a *testAPI) makeSource(t *testing.T, name string, files ...string) (string, []string) {
	t.Helper()

	dir := filepath.Join(a.sourceRoot, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
		paths = append(paths, path)
	}
	return dir, paths
}

// submit posts a transcode job for the given files.
func (a *testAPI) submit(t *testing.T, dir string, hold bool, paths ...string) models.ULID {
	t.Helper()

	settings := make([]map[string]any, 0, len(paths))
	for _, p := range paths {
		settings = append(settings, map[string]any{"file_path": p, "num_frames": 300})
	}
	rec := a.do(t, http.MethodPost, "/api/v1/transcode", map[string]any{
		"source_dir": dir,
		"settings":   settings,
		"hold":       hold,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		JobID models.ULID `json:"job_id"`
	}
	decode(t, rec, &resp)
	return resp.JobID
}

type problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
