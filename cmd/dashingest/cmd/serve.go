package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/dashingest/internal/config"
	"github.com/jmylchreest/dashingest/internal/database"
	"github.com/jmylchreest/dashingest/internal/database/migrations"
	"github.com/jmylchreest/dashingest/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/dashingest/internal/http"
	"github.com/jmylchreest/dashingest/internal/http/handlers"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/observability"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/scheduler"
	"github.com/jmylchreest/dashingest/internal/service"
	"github.com/jmylchreest/dashingest/internal/service/logs"
	"github.com/jmylchreest/dashingest/internal/service/progress"
	"github.com/jmylchreest/dashingest/internal/startup"
	"github.com/jmylchreest/dashingest/internal/storage"
	"github.com/jmylchreest/dashingest/internal/version"
)

const logBufferSize = 1000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashingest server",
	Long: `Start the dashingest HTTP API, the transcode workers and the queue scheduler.

The server provides:
- REST API for ingest, transcode jobs, the queue schedule, settings and the catalog
- Live task progress at /api/v1/progress/events
- Health endpoints at /health, /livez and /readyz
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "dashingest.db", "Database DSN (file path for sqlite)")
	serveCmd.Flags().String("data-dir", "./data", "Working directory for temporary task output")
	serveCmd.Flags().Int("workers", 2, "Number of concurrent transcode workers")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
	mustBindPFlag("transcode.workers", serveCmd.Flags().Lookup("workers"))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Keep a window of recent records for the logs API.
	logsService := logs.New(logBufferSize)
	slog.SetDefault(slog.New(logsService.WrapHandler(slog.Default().Handler())))
	logger := slog.Default()
	observability.SetRequestLoggingEnabled(cfg.Server.RequestLogging)

	logger.Info("starting dashingest", version.LogAttrs())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stale workspaces from a previous run.
	tempDir := cfg.Storage.TempPath()
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	maxAge := cfg.Storage.TempMaxAge
	if maxAge <= 0 {
		maxAge = startup.DefaultCleanupAge
	}
	if removed, err := startup.CleanupOrphanedTempDirs(logger, tempDir, maxAge); err != nil {
		logger.Warn("failed to clean orphaned task workspaces", slog.Any("error", err))
	} else if removed > 0 {
		logger.Info("cleaned orphaned task workspaces", slog.Int("removed_count", removed))
	}

	// Database
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", slog.Any("error", err))
		}
	}()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if applied, err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	} else if applied > 0 {
		logger.Info("database schema migrated", slog.Int("applied", applied))
	}

	// Repositories
	jobRepo := repository.NewJobRepository(db.DB)
	taskRepo := repository.NewTaskRepository(db.DB)
	catalogRepo := repository.NewCatalogRepository(db.DB)
	scheduleRepo := repository.NewScheduleRepository(db.DB)
	settingRepo := repository.NewSettingRepository(db.DB)

	settingsService := service.NewSettingsService(settingRepo).WithLogger(logger)
	if seeded, err := settingsService.Seed(ctx, cfg.Media); err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	} else if seeded > 0 {
		logger.Info("seeded media settings from config", slog.Int("count", seeded))
	}

	// External binaries
	detector := ffmpeg.NewBinaryDetector(ffmpeg.BinaryPaths{
		FFmpeg:  cfg.FFmpeg.BinaryPath,
		FFprobe: cfg.FFmpeg.ProbePath,
		MP4Box:  cfg.FFmpeg.PackagerPath,
	})
	probePath := probeBinary(ctx, logger, detector, cfg.FFmpeg)
	processRunner := ffmpeg.NewRunner(ffmpeg.NewTerminators()).WithLogger(logger)

	// Services
	progressService := progress.NewService(logger)
	jobService := service.NewJobService(jobRepo, taskRepo, settingsService).WithLogger(logger)
	catalogService := service.NewCatalogService(catalogRepo, settingsService).WithLogger(logger)
	ingestService := service.NewIngestService(jobRepo, ffmpeg.NewProber(probePath)).WithLogger(logger)
	promoter := storage.NewPromoter(cfg.Transcode.RetryDelay).WithLogger(logger)
	transcodeService := service.NewTranscodeService(
		jobRepo,
		taskRepo,
		catalogService,
		detector,
		processRunner,
		promoter,
		tempDir,
	).WithLogger(logger).WithProgress(progressService)

	recovered, err := startup.RecoverInterruptedWork(ctx, logger, jobRepo, taskRepo, jobService)
	if err != nil {
		return fmt.Errorf("recovering interrupted work: %w", err)
	}
	if recovered.Tasks > 0 || recovered.Jobs > 0 {
		logger.Warn("recovered work interrupted by the previous run",
			slog.Int("tasks", recovered.Tasks),
			slog.Int("jobs", recovered.Jobs))
	}

	// Job runner
	executor := scheduler.NewExecutor(jobRepo).WithLogger(logger)
	executor.RegisterHandler(models.JobTypeTranscode, scheduler.NewTranscodeHandler(transcodeService.ProcessJob))
	executor.RegisterHandler(models.JobTypeMetadata, scheduler.NewMetadataHandler(ingestService))

	runnerConfig := scheduler.DefaultRunnerConfig()
	runnerConfig.WorkerCount = cfg.Transcode.Workers
	if cfg.Transcode.PollInterval > 0 {
		runnerConfig.PollInterval = cfg.Transcode.PollInterval
	}
	if cfg.Transcode.LockTimeout > 0 {
		runnerConfig.LockTimeout = cfg.Transcode.LockTimeout
	}
	jobRunner := scheduler.NewRunner(jobRepo, executor).
		WithConfig(runnerConfig).
		WithLogger(logger).
		WithStaleHandler(jobService.HandleStaleJob)
	jobService.WithRunner(jobRunner)

	queueScheduler := scheduler.NewScheduler(scheduleRepo, jobService).
		WithConfig(schedulerConfig(cfg.Scheduler)).
		WithLogger(logger)
	scheduleService := service.NewScheduleService(scheduleRepo, queueScheduler).WithLogger(logger)

	if err := jobRunner.Start(ctx); err != nil {
		return fmt.Errorf("starting runner: %w", err)
	}
	defer func() {
		// Stop cancels job contexts; killing children directly covers
		// processes that ignore the interrupt.
		if n := processRunner.Terminators().TerminateAll(); n > 0 {
			logger.Info("terminated running encoder processes", slog.Int("count", n))
		}
		jobRunner.Stop()
	}()

	if err := queueScheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer queueScheduler.Stop()

	// HTTP
	serverConfig := internalhttp.ServerConfigFrom(cfg.Server)
	server := internalhttp.NewServer(serverConfig, logger, version.Version)
	api := server.API()

	handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithProcesses(processRunner).
		WithRunner(jobService).
		Register(api)
	handlers.NewIngestHandler(ingestService).Register(api)
	handlers.NewTranscodeHandler(jobService).Register(api)
	handlers.NewJobHandler(jobService).Register(api)
	handlers.NewQueueHandler(jobService, scheduleService).Register(api)
	handlers.NewSettingsHandler(settingsService).Register(api)
	handlers.NewCatalogHandler(catalogService).Register(api)
	handlers.NewLogsHandler(logsService).Register(api)

	progressHandler := handlers.NewProgressHandler(progressService)
	progressHandler.Register(api)
	progressHandler.RegisterSSE(server.Router())

	logger.Info("starting HTTP server",
		slog.String("address", fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port)),
		slog.Int("workers", runnerConfig.WorkerCount),
		slog.String("temp_dir", tempDir))

	return server.ListenAndServe(ctx)
}

// probeBinary resolves ffprobe once at startup. Ingest falls back to the
// configured path, or PATH lookup, when detection fails.
func probeBinary(ctx context.Context, logger *slog.Logger, detector *ffmpeg.BinaryDetector, cfg config.FFmpegConfig) string {
	info, err := detector.Detect(ctx)
	if err != nil {
		logger.Warn("encoder binaries not found; transcode tasks will fail until they are installed",
			slog.Any("error", err))
		if cfg.ProbePath != "" {
			return cfg.ProbePath
		}
		return "ffprobe"
	}
	logger.Info("encoder binaries detected",
		slog.String("ffmpeg", info.FFmpegPath),
		slog.String("ffprobe", info.FFprobePath),
		slog.String("mp4box", info.MP4BoxPath),
		slog.String("version", info.Version))
	return info.FFprobePath
}

func schedulerConfig(cfg config.SchedulerConfig) scheduler.SchedulerConfig {
	sc := scheduler.DefaultSchedulerConfig()
	if cfg.SyncInterval > 0 {
		sc.SyncInterval = cfg.SyncInterval
	}
	sc.MisfireGrace = cfg.MisfireGrace
	return sc
}
