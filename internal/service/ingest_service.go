package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/dashingest/internal/ffmpeg"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/scheduler"
)

// File extensions recognised by CountMedia and the metadata walk, lower case.
var (
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".mov": true, ".flv": true,
		".wmv": true, ".ts": true, ".m4v": true,
	}
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
		".tif": true, ".tiff": true, ".orf": true, ".cr2": true, ".dng": true,
	}
)

// IsVideoFile reports whether path has a video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsImageFile reports whether path has an image extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// MediaCount is the number of images and videos found in a directory tree.
type MediaCount struct {
	Images int `json:"images"`
	Videos int `json:"videos"`
}

// ParsedVideos is the stored result of a METADATA job.
type ParsedVideos struct {
	Job    *models.Job            `json:"job"`
	Videos []models.VideoMetadata `json:"videos"`
}

// Prober inspects the video streams of a file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// IngestService inspects source folders before they are transcoded.
type IngestService struct {
	jobRepo repository.JobRepository
	prober  Prober
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngestService creates a new IngestService.
func NewIngestService(jobRepo repository.JobRepository, prober Prober) *IngestService {
	return &IngestService{
		jobRepo: jobRepo,
		prober:  prober,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *IngestService) WithLogger(logger *slog.Logger) *IngestService {
	s.logger = logger
	return s
}

// CountMedia counts the images and videos below dir.
func (s *IngestService) CountMedia(dir string) (*MediaCount, error) {
	if err := checkSourceDir(dir); err != nil {
		return nil, err
	}

	count := &MediaCount{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case IsVideoFile(path):
			count.Videos++
		case IsImageFile(path):
			count.Images++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting media in %s: %w", dir, err)
	}
	return count, nil
}

// SubmitParse creates a METADATA job for dir, dispatched immediately.
func (s *IngestService) SubmitParse(ctx context.Context, dir string) (*models.Job, error) {
	if err := checkSourceDir(dir); err != nil {
		return nil, err
	}

	job := &models.Job{
		Type:      models.JobTypeMetadata,
		Status:    models.JobStatusQueued,
		SourceDir: filepath.Clean(dir),
	}
	job.Dispatch(s.now())

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("creating metadata job: %w", err)
	}

	s.logger.Info("metadata job submitted",
		slog.String("job_id", job.ID.String()),
		slog.String("source_dir", job.SourceDir))
	return job, nil
}

// GetParsed returns a METADATA job and the videos it found. Videos is empty
// until the job completes.
func (s *IngestService) GetParsed(ctx context.Context, id models.ULID) (*ParsedVideos, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Type != models.JobTypeMetadata {
		return nil, fmt.Errorf("%w: %s is not a metadata job", ErrWrongJobType, id)
	}

	videos := []models.VideoMetadata{}
	if err := job.DecodeData(&videos); err != nil {
		return nil, err
	}
	return &ParsedVideos{Job: job, Videos: videos}, nil
}

// ParseJob walks the job's source folder, probes every video and stores the
// metadata as the job result. The job ends COMPLETED, or ERROR with the
// failure message. It satisfies scheduler.MetadataParseService.
func (s *IngestService) ParseJob(ctx context.Context, job *models.Job) (int, error) {
	storeCtx := context.WithoutCancel(ctx)

	videos, err := s.parseDir(ctx, job.SourceDir)
	if err != nil {
		if storeErr := s.jobRepo.SetResult(storeCtx, job.ID, models.JobStatusError, "", err.Error()); storeErr != nil {
			return 0, errors.Join(err, storeErr)
		}
		return 0, err
	}

	result := &models.Job{}
	if err := result.SetData(videos); err != nil {
		return 0, err
	}
	if err := s.jobRepo.SetResult(storeCtx, job.ID, models.JobStatusCompleted, result.Data, ""); err != nil {
		return 0, err
	}

	s.logger.Info("metadata job completed",
		slog.String("job_id", job.ID.String()),
		slog.String("source_dir", job.SourceDir),
		slog.Int("videos", len(videos)))
	return len(videos), nil
}

func (s *IngestService) parseDir(ctx context.Context, dir string) ([]models.VideoMetadata, error) {
	if err := checkSourceDir(dir); err != nil {
		return nil, err
	}

	videos := []models.VideoMetadata{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsVideoFile(path) {
			return nil
		}

		meta, err := s.probeFile(ctx, dir, path, d)
		if errors.Is(err, ffmpeg.ErrNoVideoStream) {
			s.logger.Warn("skipping file without video stream", slog.String("file", path))
			return nil
		}
		if err != nil {
			return fmt.Errorf("probing %s: %w", path, err)
		}
		videos = append(videos, *meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return videos, nil
}

func (s *IngestService) probeFile(ctx context.Context, sourceDir, path string, d fs.DirEntry) (*models.VideoMetadata, error) {
	probe, err := s.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	stream, err := probe.VideoStream()
	if err != nil {
		return nil, err
	}
	info, err := d.Info()
	if err != nil {
		return nil, err
	}
	created, modified := fileTimes(info)

	meta := &models.VideoMetadata{
		FileName:     filepath.Base(path),
		FilePath:     path,
		Width:        stream.Width,
		Height:       stream.Height,
		Duration:     stream.Duration,
		FrameRate:    ffmpeg.FramerateString(stream.RFrameRate),
		NumFrames:    stream.Frames(),
		Size:         info.Size(),
		CreatedDate:  created,
		ModifiedDate: modified,
	}
	meta.ValidationStatus = ValidateVideo(sourceDir, meta)
	return meta, nil
}

var _ scheduler.MetadataParseService = (*IngestService)(nil)
