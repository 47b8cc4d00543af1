package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/dashingest/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// catalogRepo implements CatalogRepository using GORM.
type catalogRepo struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *gorm.DB) *catalogRepo {
	return &catalogRepo{db: db}
}

// CreateFolder upserts a folder by its natural key. Concurrent callers with
// the same key all receive the same row.
func (r *catalogRepo) CreateFolder(ctx context.Context, year, month, day int, observerCode string) (*models.CatalogFolder, error) {
	folder := &models.CatalogFolder{Year: year, Month: month, Day: day, ObserverCode: observerCode}

	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "year"}, {Name: "month"}, {Name: "day"}, {Name: "observer_code"},
		},
		DoNothing: true,
	}).Create(folder).Error; err != nil {
		return nil, fmt.Errorf("creating catalog folder: %w", err)
	}

	var stored models.CatalogFolder
	if err := db.Where("year = ? AND month = ? AND day = ? AND observer_code = ?", year, month, day, observerCode).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("loading catalog folder: %w", err)
	}
	return &stored, nil
}

// GetFolder retrieves a folder by ID.
func (r *catalogRepo) GetFolder(ctx context.Context, id models.ULID) (*models.CatalogFolder, error) {
	var folder models.CatalogFolder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting catalog folder: %w", err)
	}
	return &folder, nil
}

// GetFolders retrieves all folders ordered by date, then observer.
func (r *catalogRepo) GetFolders(ctx context.Context) ([]*models.CatalogFolder, error) {
	var folders []*models.CatalogFolder
	if err := r.db.WithContext(ctx).
		Order("year ASC, month ASC, day ASC, observer_code ASC").
		Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("getting catalog folders: %w", err)
	}
	return folders, nil
}

// CreateVideo creates a catalog video.
func (r *catalogRepo) CreateVideo(ctx context.Context, video *models.CatalogVideo) error {
	if video.FolderID.IsZero() {
		return models.ErrValidation{Field: "folder_id", Message: "is required"}
	}
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating catalog video: %w", err)
	}
	return nil
}

// GetVideosByFolder retrieves the visible videos of a folder.
func (r *catalogRepo) GetVideosByFolder(ctx context.Context, folderID models.ULID) ([]*models.CatalogVideo, error) {
	var videos []*models.CatalogVideo
	if err := r.db.WithContext(ctx).
		Where("folder_id = ? AND hidden = ?", folderID, false).
		Order("original_file_name ASC").
		Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("getting catalog videos: %w", err)
	}
	return videos, nil
}

// Ensure catalogRepo implements CatalogRepository at compile time.
var _ CatalogRepository = (*catalogRepo)(nil)
