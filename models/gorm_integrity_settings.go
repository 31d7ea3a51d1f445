package models

// IntegritySettingsID is the primary key of the single settings row.
const IntegritySettingsID = 1

// IntegritySettings is the operator-maintained threshold record.
// It corresponds to the 'integrity_settings' table and holds exactly one row.
// Zero values mean "use the built-in default".
type IntegritySettings struct {
	ID                uint    `gorm:"primaryKey" json:"id"`
	MatchThreshold    float64 `gorm:"not null;default:0" json:"match_threshold"`
	OutlierThreshold  float64 `gorm:"not null;default:0" json:"outlier_threshold"`
	VerifiedThreshold float64 `gorm:"not null;default:0" json:"verified_threshold"`
	UnknownConfidence float64 `gorm:"not null;default:0" json:"unknown_confidence"`
	UpdatedAt         int64   `gorm:"not null" json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (IntegritySettings) TableName() string {
	return "integrity_settings"
}

// All lists every model the integrity engine migrates.
func All() []interface{} {
	return []interface{}{
		&Person{},
		&Alias{},
		&Face{},
		&Image{},
		&Album{},
		&IntegritySettings{},
	}
}
