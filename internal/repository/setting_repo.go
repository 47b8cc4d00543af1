package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/dashingest/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settingRepo implements SettingRepository using GORM.
type settingRepo struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *gorm.DB) *settingRepo {
	return &settingRepo{db: db}
}

// Get retrieves a setting by key.
func (r *settingRepo) Get(ctx context.Context, key models.SettingKey) (*models.Setting, error) {
	var setting models.Setting
	// Struct conditions keep the column quoted; key is reserved in MySQL.
	if err := r.db.WithContext(ctx).Where(&models.Setting{Key: key}).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting setting %s: %w", key, err)
	}
	return &setting, nil
}

// GetAll retrieves every stored setting.
func (r *settingRepo) GetAll(ctx context.Context) ([]*models.Setting, error) {
	var settings []*models.Setting
	if err := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return settings, nil
}

// Set stores a value, replacing any existing one.
func (r *settingRepo) Set(ctx context.Context, key models.SettingKey, value string) error {
	setting := &models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(setting).Error; err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent stores a value only if the key is unset.
func (r *settingRepo) SetIfAbsent(ctx context.Context, key models.SettingKey, value string) (bool, error) {
	setting := &models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(setting)
	if result.Error != nil {
		return false, fmt.Errorf("seeding setting %s: %w", key, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Ensure settingRepo implements SettingRepository at compile time.
var _ SettingRepository = (*settingRepo)(nil)
