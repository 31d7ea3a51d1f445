package models

// Image represents a photo record in the database using GORM.
// It corresponds to the 'images' table. The integrity engine only reads it for
// existence checks and report statistics.
type Image struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	AlbumID      *uint  `gorm:"index" json:"album_id,omitempty"` // Nullable reference to albums table
	OriginalPath string `gorm:"not null;uniqueIndex" json:"original_path"`
	Width        *int   `gorm:"" json:"width,omitempty"`  // Nullable
	Height       *int   `gorm:"" json:"height,omitempty"` // Nullable
	CreatedAt    int64  `gorm:"not null" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}

// Key returns the primary key used by paginated scans.
func (i Image) Key() uint {
	return i.ID
}
