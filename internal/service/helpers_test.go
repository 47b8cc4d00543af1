package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/dashingest/internal/ffmpeg"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/service/progress"
	"github.com/jmylchreest/dashingest/internal/storage"
	"github.com/jmylchreest/dashingest/internal/testutil"
	"github.com/stretchr/testify/require"
)

const (
	fakeFFmpeg = "/opt/ffmpeg/ffmpeg"
	fakeMP4Box = "/opt/gpac/MP4Box"
)

// fakeDetector returns fixed binary paths, or err.
type fakeDetector struct {
	err error
}

func (d *fakeDetector) Detect(context.Context) (*ffmpeg.BinaryInfo, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &ffmpeg.BinaryInfo{FFmpegPath: fakeFFmpeg, MP4BoxPath: fakeMP4Box}, nil
}

// fakeRunner stands in for ffmpeg and MP4Box. Encodes write their output
// file and report frame lines; packaging writes a manifest and one segment
// next to the -out path.
type fakeRunner struct {
	mu       sync.Mutex
	commands []*ffmpeg.Command
	frames   int
	// failOn maps "encode:<height>" or "package" to the error returned.
	failOn map[string]error
	// onRun runs before every command.
	onRun func(cmd *ffmpeg.Command)
}

func (r *fakeRunner) Run(ctx context.Context, cmd *ffmpeg.Command, onLine ffmpeg.LineHandler) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	onRun := r.onRun
	r.mu.Unlock()

	if onRun != nil {
		onRun(cmd)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch cmd.Binary {
	case fakeFFmpeg:
		return r.encode(cmd, onLine)
	case fakeMP4Box:
		return r.pack(cmd)
	default:
		return fmt.Errorf("unexpected binary %s", cmd.Binary)
	}
}

func (r *fakeRunner) encode(cmd *ffmpeg.Command, onLine ffmpeg.LineHandler) error {
	height := argAfter(cmd.Args, "-vf")
	var h int
	_, _ = fmt.Sscanf(height, "scale=-2:%d", &h)
	if err := r.failOn["encode:"+strconv.Itoa(h)]; err != nil {
		return err
	}

	frames := r.frames
	if frames == 0 {
		frames = 300
	}
	if onLine != nil {
		for _, f := range []int{frames / 2, frames} {
			onLine(fmt.Sprintf("frame=%d fps=30 q=28.0 size=100kB time=00:00:01.00 bitrate=800kbits/s speed=1x", f))
		}
	}

	output := cmd.Args[len(cmd.Args)-1]
	return os.WriteFile(output, []byte("mp4"), 0o644)
}

func (r *fakeRunner) pack(cmd *ffmpeg.Command) error {
	if err := r.failOn["package"]; err != nil {
		return err
	}
	mpd := argAfter(cmd.Args, "-out")
	if err := os.WriteFile(mpd, []byte("<MPD/>"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(filepath.Dir(mpd), "segment_1080_1.m4s"), []byte("seg"), 0o644)
}

func (r *fakeRunner) binaries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, filepath.Base(c.Binary))
	}
	return out
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

// testEnv wires the services over an in-memory database and temp dirs.
type testEnv struct {
	ctx context.Context

	jobRepo      repository.JobRepository
	taskRepo     repository.TaskRepository
	catalogRepo  repository.CatalogRepository
	scheduleRepo repository.ScheduleRepository

	settings  *SettingsService
	catalog   *CatalogService
	jobs      *JobService
	transcode *TranscodeService
	progress  *progress.Service
	runner    *fakeRunner
	detector  *fakeDetector

	sourceRoot string
	optimized  string
	original   string
	tempDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	logger := testutil.QuietLogger()
	root := t.TempDir()

	env := &testEnv{
		ctx:          context.Background(),
		jobRepo:      repository.NewJobRepository(db),
		taskRepo:     repository.NewTaskRepository(db),
		catalogRepo:  repository.NewCatalogRepository(db),
		scheduleRepo: repository.NewScheduleRepository(db),
		progress:     progress.NewService(logger),
		runner:       &fakeRunner{},
		detector:     &fakeDetector{},
		sourceRoot:   filepath.Join(root, "ingest"),
		optimized:    filepath.Join(root, "optimized"),
		original:     filepath.Join(root, "original"),
		tempDir:      filepath.Join(root, "tmp"),
	}
	for _, dir := range []string{env.sourceRoot, env.optimized, env.original} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	env.settings = NewSettingsService(repository.NewSettingRepository(db)).WithLogger(logger)
	require.NoError(t, env.settings.Set(env.ctx, string(models.SettingOptimizedVideosDir), env.optimized))
	require.NoError(t, env.settings.Set(env.ctx, string(models.SettingOriginalVideosDir), env.original))

	env.catalog = NewCatalogService(env.catalogRepo, env.settings).WithLogger(logger)
	env.jobs = NewJobService(env.jobRepo, env.taskRepo, env.settings).WithLogger(logger)
	env.transcode = NewTranscodeService(
		env.jobRepo, env.taskRepo, env.catalog, env.detector, env.runner,
		storage.NewPromoter(10*time.Millisecond).WithLogger(logger), env.tempDir,
	).WithLogger(logger).WithProgress(env.progress)

	return env
}

// makeSource creates a source folder with the given files (relative paths)
// and the decade and year directories of both catalog trees.
func (e *testEnv) makeSource(t *testing.T, name string, files ...string) (string, []string) {
	t.Helper()

	dir := filepath.Join(e.sourceRoot, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	info, err := storage.ParseFolderName(name)
	require.NoError(t, err)
	for _, root := range []string{e.optimized, e.original} {
		require.NoError(t, os.MkdirAll(filepath.Dir(storage.CatalogDir(root, info)), 0o755))
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
		paths = append(paths, path)
	}
	return dir, paths
}

// submit creates a dispatched transcode job for paths.
func (e *testEnv) submit(t *testing.T, dir string, paths ...string) *models.Job {
	t.Helper()

	req := TranscodeRequest{SourceDir: dir}
	for _, p := range paths {
		req.Tasks = append(req.Tasks, testutil.TranscodeSettings(p))
	}
	job, err := e.jobs.SubmitTranscode(e.ctx, req)
	require.NoError(t, err)
	return job
}

func (e *testEnv) tasks(t *testing.T, jobID models.ULID) []*models.Task {
	t.Helper()
	tasks, err := e.taskRepo.GetByJobID(e.ctx, jobID)
	require.NoError(t, err)
	return tasks
}

func (e *testEnv) job(t *testing.T, id models.ULID) *models.Job {
	t.Helper()
	job, err := e.jobRepo.GetByID(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}
