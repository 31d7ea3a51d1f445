package repository

import (
	"context"

	"github.com/camden-git/mediasysintegrity/models"
)

// PersonRepositoryInterface defines the methods for person data operations
type PersonRepositoryInterface interface {
	GetByID(ctx context.Context, id uint) (*models.Person, error)
	GetByIDsByRecency(ctx context.Context, ids []uint) ([]models.Person, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	DeleteMany(ctx context.Context, ids []uint) (int64, error)
	AddAliases(ctx context.Context, personID uint, names []string) (int64, error)
	DeleteAliasesByPersonIDs(ctx context.Context, personIDs []uint) (int64, error)
	LinkCounts(ctx context.Context, personIDs []uint) (map[uint]int64, error)
}

// FaceRepositoryInterface defines the methods for face data operations
type FaceRepositoryInterface interface {
	SetExcluded(ctx context.Context, personID uint, faceIDs []uint, excluded bool) (int64, error)
	ClearDescriptors(ctx context.Context, personID uint, faceIDs []uint) (int64, error)
	PersonIDsWithDescriptors(ctx context.Context, minCount int) ([]uint, error)
}
