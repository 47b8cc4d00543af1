package models

// CatalogFolder identifies one observation day: a date plus the observer code.
// The natural key (year, month, day, observer_code) is unique.
type CatalogFolder struct {
	BaseModel

	Year         int    `gorm:"not null;uniqueIndex:idx_catalog_folder_key" json:"year"`
	Month        int    `gorm:"not null;uniqueIndex:idx_catalog_folder_key" json:"month"`
	Day          int    `gorm:"not null;uniqueIndex:idx_catalog_folder_key" json:"day"`
	ObserverCode string `gorm:"not null;size:255;uniqueIndex:idx_catalog_folder_key" json:"observer_code"`
}

// TableName returns the table name for CatalogFolder.
func (CatalogFolder) TableName() string {
	return "catalog_folders"
}

// CatalogVideo links an original file to its packaged manifest.
type CatalogVideo struct {
	BaseModel

	FolderID         ULID   `gorm:"type:varchar(26);not null;index" json:"folder_id"`
	OriginalFileName string `gorm:"size:1024;not null" json:"original_file_name"`
	// OptimizedFileName is the manifest path relative to the folder's optimized directory.
	OptimizedFileName string `gorm:"size:4096;not null" json:"optimized_file_name"`
	FrameRate         int    `json:"frame_rate"`
	Hidden            bool   `gorm:"not null;default:false" json:"hidden"`
}

// TableName returns the table name for CatalogVideo.
func (CatalogVideo) TableName() string {
	return "catalog_videos"
}
