package models

// Face links a detected face region in an image to an optional person, using GORM.
// It corresponds to the 'faces' table and is the record the integrity engine
// reconciles.
type Face struct {
	ID                    uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageID               uint     `gorm:"not null;index" json:"image_id"`   // Reference to images table
	PersonID              *uint    `gorm:"index" json:"person_id,omitempty"` // Nullable reference to people table
	X1                    int      `gorm:"not null" json:"x1"`
	Y1                    int      `gorm:"not null" json:"y1"`
	X2                    int      `gorm:"not null" json:"x2"`
	Y2                    int      `gorm:"not null" json:"y2"`
	DetectionConfidence   float64  `gorm:"not null;default:0" json:"detection_confidence"`        // Set by the detector, never changed here
	RecognitionConfidence *float64 `gorm:"index" json:"recognition_confidence,omitempty"`         // Nullable, 0..1
	Verified              bool     `gorm:"not null;default:false;index" json:"verified"`          // Operator confirmed
	Descriptor            []byte   `gorm:"column:descriptor" json:"-"`                            // Nullable float32 BLOB
	ExcludedFromMatching  bool     `gorm:"not null;default:false" json:"excluded_from_matching"` // Soft-removed descriptor
	CreatedAt             int64    `gorm:"not null" json:"created_at"`                            // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt             int64    `gorm:"not null" json:"updated_at"`                            // Stored as INTEGER in SQLite, Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Face) TableName() string {
	return "faces"
}

// Key returns the primary key used by paginated scans.
func (f Face) Key() uint {
	return f.ID
}

// HasDescriptor reports whether a descriptor vector is stored for the face.
func (f Face) HasDescriptor() bool {
	return len(f.Descriptor) > 0
}
