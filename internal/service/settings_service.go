package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jmylchreest/dashingest/internal/config"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
)

// MediaDirs are the destination roots a transcode writes into.
type MediaDirs struct {
	Optimized string `json:"optimized_videos_dir"`
	Original  string `json:"original_videos_dir"`
}

// SettingsService manages the key/value settings store.
type SettingsService struct {
	repo   repository.SettingRepository
	logger *slog.Logger
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(repo repository.SettingRepository) *SettingsService {
	return &SettingsService{
		repo:   repo,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *SettingsService) WithLogger(logger *slog.Logger) *SettingsService {
	s.logger = logger
	return s
}

// ParseKey converts a raw key into a SettingKey, rejecting unknown keys.
func ParseKey(raw string) (models.SettingKey, error) {
	key := models.SettingKey(raw)
	if !key.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidSettingKey, raw)
	}
	return key, nil
}

// Get retrieves the value of a setting.
func (s *SettingsService) Get(ctx context.Context, raw string) (*models.Setting, error) {
	key, err := ParseKey(raw)
	if err != nil {
		return nil, err
	}
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, fmt.Errorf("%w: %s", ErrSettingNotFound, key)
	}
	return setting, nil
}

// GetAll retrieves every stored setting.
func (s *SettingsService) GetAll(ctx context.Context) ([]*models.Setting, error) {
	return s.repo.GetAll(ctx)
}

// Set stores a setting. Directory settings must be absolute paths.
func (s *SettingsService) Set(ctx context.Context, raw, value string) error {
	key, err := ParseKey(raw)
	if err != nil {
		return err
	}
	if err := validateDirSetting(key, value); err != nil {
		return err
	}
	if err := s.repo.Set(ctx, key, filepath.Clean(value)); err != nil {
		return err
	}

	s.logger.Info("setting updated",
		slog.String("key", string(key)),
		slog.String("value", value))
	return nil
}

func validateDirSetting(key models.SettingKey, value string) error {
	if value == "" {
		return models.ErrValidation{Field: string(key), Message: "must not be empty"}
	}
	if !filepath.IsAbs(value) {
		return models.ErrValidation{Field: string(key), Message: "must be an absolute path"}
	}
	return nil
}

// Seed stores the configured media roots for keys that have no value yet.
// Returns the number of settings written.
func (s *SettingsService) Seed(ctx context.Context, media config.MediaConfig) (int, error) {
	seeds := map[models.SettingKey]string{
		models.SettingOptimizedVideosDir: media.OptimizedVideosDir,
		models.SettingOriginalVideosDir:  media.OriginalVideosDir,
	}

	written := 0
	for _, key := range models.SettingKeys() {
		value := seeds[key]
		if value == "" {
			continue
		}
		if err := validateDirSetting(key, value); err != nil {
			return written, err
		}
		stored, err := s.repo.SetIfAbsent(ctx, key, filepath.Clean(value))
		if err != nil {
			return written, err
		}
		if stored {
			written++
			s.logger.Info("seeded setting from config",
				slog.String("key", string(key)),
				slog.String("value", value))
		}
	}
	return written, nil
}

// MediaDirs returns both destination roots. A missing value is a
// configuration error wrapping ErrSettingNotFound.
func (s *SettingsService) MediaDirs(ctx context.Context) (*MediaDirs, error) {
	optimized, err := s.required(ctx, models.SettingOptimizedVideosDir)
	if err != nil {
		return nil, err
	}
	original, err := s.required(ctx, models.SettingOriginalVideosDir)
	if err != nil {
		return nil, err
	}
	return &MediaDirs{Optimized: optimized, Original: original}, nil
}

func (s *SettingsService) required(ctx context.Context, key models.SettingKey) (string, error) {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if setting == nil || setting.Value == "" {
		return "", fmt.Errorf("%w: %s must be configured", ErrSettingNotFound, key)
	}
	return setting.Value, nil
}
