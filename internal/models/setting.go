package models

import "time"

// SettingKey is one of the fixed setting keys.
type SettingKey string

const (
	// SettingOptimizedVideosDir is the root of the packaged output tree.
	SettingOptimizedVideosDir SettingKey = "optimized_videos_dir"
	// SettingOriginalVideosDir is the root of the original backup tree.
	SettingOriginalVideosDir SettingKey = "original_videos_dir"
)

// SettingKeys returns every known setting key.
func SettingKeys() []SettingKey {
	return []SettingKey{SettingOptimizedVideosDir, SettingOriginalVideosDir}
}

// IsValid reports whether k is a known setting key.
func (k SettingKey) IsValid() bool {
	for _, known := range SettingKeys() {
		if k == known {
			return true
		}
	}
	return false
}

// Setting is a single key/value entry of the settings store.
type Setting struct {
	Key       SettingKey `gorm:"primaryKey;size:100" json:"key"`
	Value     string     `gorm:"size:4096;not null" json:"value"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}
