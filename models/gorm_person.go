package models

// Person represents an identified real person using GORM.
// It corresponds to the 'people' table.
type Person struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	PrimaryName string  `gorm:"not null" json:"primary_name"`
	Email       *string `gorm:"index" json:"email,omitempty"`       // Nullable, contact address
	Handle      *string `gorm:"index" json:"handle,omitempty"`      // Nullable, social handle
	ProfileURL  *string `gorm:"" json:"profile_url,omitempty"`      // Nullable
	WebsiteURL  *string `gorm:"" json:"website_url,omitempty"`      // Nullable
	AvatarPath  *string `gorm:"" json:"avatar_path,omitempty"`      // Nullable
	Bio         *string `gorm:"" json:"bio,omitempty"`              // Nullable
	CreatedAt   int64   `gorm:"not null;index" json:"created_at"`   // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt   int64   `gorm:"not null" json:"updated_at"`         // Stored as INTEGER in SQLite, Unix timestamp

	// Relationships
	// omitempty will hide these if they are not preloaded or are empty
	Aliases []Alias `gorm:"foreignKey:PersonID" json:"aliases,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Person) TableName() string {
	return "people"
}

// Key returns the primary key used by paginated scans.
func (p Person) Key() uint {
	return p.ID
}

// StringField returns the value of an optional identity-bearing column by its
// column name. Unknown columns and NULL values yield "".
func (p Person) StringField(column string) string {
	var v *string
	switch column {
	case "primary_name":
		return p.PrimaryName
	case "email":
		v = p.Email
	case "handle":
		v = p.Handle
	case "profile_url":
		v = p.ProfileURL
	case "website_url":
		v = p.WebsiteURL
	case "avatar_path":
		v = p.AvatarPath
	case "bio":
		v = p.Bio
	}
	if v == nil {
		return ""
	}
	return *v
}
