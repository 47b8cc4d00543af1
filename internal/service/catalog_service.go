package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/storage"
)

// FolderPaths are the catalog directories of one observation folder.
type FolderPaths struct {
	Info         storage.FolderInfo `json:"-"`
	OptimizedDir string             `json:"optimized_dir"`
	OriginalDir  string             `json:"original_dir"`
}

// CatalogService resolves catalog folders and records packaged videos.
type CatalogService struct {
	catalogRepo repository.CatalogRepository
	settings    *SettingsService
	logger      *slog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(catalogRepo repository.CatalogRepository, settings *SettingsService) *CatalogService {
	return &CatalogService{
		catalogRepo: catalogRepo,
		settings:    settings,
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *CatalogService) WithLogger(logger *slog.Logger) *CatalogService {
	s.logger = logger
	return s
}

// ResolvePaths computes the optimized and original directories for a source
// folder without touching the filesystem.
func (s *CatalogService) ResolvePaths(ctx context.Context, sourceDir string) (*FolderPaths, error) {
	info, err := storage.ParseFolderName(filepath.Base(filepath.Clean(sourceDir)))
	if err != nil {
		return nil, err
	}
	return s.pathsFor(ctx, info)
}

func (s *CatalogService) pathsFor(ctx context.Context, info storage.FolderInfo) (*FolderPaths, error) {
	dirs, err := s.settings.MediaDirs(ctx)
	if err != nil {
		return nil, err
	}
	return &FolderPaths{
		Info:         info,
		OptimizedDir: storage.CatalogDir(dirs.Optimized, info),
		OriginalDir:  storage.CatalogDir(dirs.Original, info),
	}, nil
}

// EnsureFolder creates the leaf catalog directories of a source folder and
// upserts its catalog record. Only the leaves are created: a missing decade
// or year directory fails with storage.ErrMissingAncestor.
func (s *CatalogService) EnsureFolder(ctx context.Context, sourceDir string) (*models.CatalogFolder, *FolderPaths, error) {
	paths, err := s.ResolvePaths(ctx, sourceDir)
	if err != nil {
		return nil, nil, err
	}

	for _, dir := range []string{paths.OptimizedDir, paths.OriginalDir} {
		if err := storage.MakeLeafDir(dir); err != nil {
			return nil, nil, err
		}
	}

	info := paths.Info
	folder, err := s.catalogRepo.CreateFolder(ctx, info.Year, info.Month, info.Day, info.ObserverCode)
	if err != nil {
		return nil, nil, err
	}
	return folder, paths, nil
}

// RecordVideo adds a packaged video to a catalog folder. manifestPath is
// relative to the folder's optimized directory.
func (s *CatalogService) RecordVideo(ctx context.Context, folderID models.ULID, originalName, manifestPath string, frameRate int) (*models.CatalogVideo, error) {
	video := &models.CatalogVideo{
		FolderID:          folderID,
		OriginalFileName:  originalName,
		OptimizedFileName: filepath.ToSlash(manifestPath),
		FrameRate:         frameRate,
	}
	if err := s.catalogRepo.CreateVideo(ctx, video); err != nil {
		return nil, err
	}

	s.logger.Debug("recorded catalog video",
		slog.String("folder_id", folderID.String()),
		slog.String("original", originalName),
		slog.String("manifest", video.OptimizedFileName))
	return video, nil
}

// ListFolders returns every catalog folder ordered by date.
func (s *CatalogService) ListFolders(ctx context.Context) ([]*models.CatalogFolder, error) {
	return s.catalogRepo.GetFolders(ctx)
}

// getFolder returns the folder or ErrFolderNotFound.
func (s *CatalogService) getFolder(ctx context.Context, id models.ULID) (*models.CatalogFolder, error) {
	folder, err := s.catalogRepo.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, id)
	}
	return folder, nil
}

// ListVideos returns the visible videos of a folder.
func (s *CatalogService) ListVideos(ctx context.Context, folderID models.ULID) ([]*models.CatalogVideo, error) {
	if _, err := s.getFolder(ctx, folderID); err != nil {
		return nil, err
	}
	return s.catalogRepo.GetVideosByFolder(ctx, folderID)
}

// FolderPaths resolves the directories of a stored catalog folder.
func (s *CatalogService) FolderPaths(ctx context.Context, folderID models.ULID) (*FolderPaths, error) {
	folder, err := s.getFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return s.pathsFor(ctx, storage.FolderInfo{
		Year:         folder.Year,
		Month:        folder.Month,
		Day:          folder.Day,
		ObserverCode: folder.ObserverCode,
	})
}
