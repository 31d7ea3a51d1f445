// Package testutil provides in-memory SQLite fixtures for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/mediasysintegrity/models"
)

// NewDB opens a fresh in-memory database with every model migrated. The pool
// is pinned to one connection so all queries see the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// CreateImage inserts an image and returns its id.
func CreateImage(t *testing.T, db *gorm.DB, path string) uint {
	t.Helper()
	img := models.Image{OriginalPath: path, CreatedAt: time.Now().Unix()}
	require.NoError(t, db.Create(&img).Error)
	return img.ID
}

// CreatePerson inserts a person. createdAt orders merge precedence.
func CreatePerson(t *testing.T, db *gorm.DB, p models.Person) models.Person {
	t.Helper()
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().Unix()
	}
	p.UpdatedAt = p.CreatedAt
	require.NoError(t, db.Create(&p).Error)
	return p
}

// CreateFace inserts a face link. CreatedAt/UpdatedAt are filled in.
func CreateFace(t *testing.T, db *gorm.DB, f models.Face) models.Face {
	t.Helper()
	now := time.Now().Unix()
	f.CreatedAt, f.UpdatedAt = now, now
	if f.X2 == 0 {
		f.X2, f.Y2 = 10, 10
	}
	require.NoError(t, db.Create(&f).Error)
	return f
}

// ReloadFace fetches the current state of a face link.
func ReloadFace(t *testing.T, db *gorm.DB, id uint) models.Face {
	t.Helper()
	var f models.Face
	require.NoError(t, db.First(&f, id).Error)
	return f
}

// FaceExists reports whether a face link row is present.
func FaceExists(t *testing.T, db *gorm.DB, id uint) bool {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Face{}).Where("id = ?", id).Count(&n).Error)
	return n > 0
}

// PersonExists reports whether a person row is present.
func PersonExists(t *testing.T, db *gorm.DB, id uint) bool {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Person{}).Where("id = ?", id).Count(&n).Error)
	return n > 0
}
