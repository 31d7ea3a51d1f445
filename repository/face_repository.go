package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/models"
)

// FaceRepository handles database operations for Face entities
type FaceRepository struct {
	DB *gorm.DB
}

// NewFaceRepository creates a new instance of FaceRepository
func NewFaceRepository(db *gorm.DB) *FaceRepository {
	return &FaceRepository{DB: db}
}

// SetExcluded flips the exclusion flag on faces belonging to personID. Faces
// of other people and faces already in the requested state are untouched.
func (r *FaceRepository) SetExcluded(ctx context.Context, personID uint, faceIDs []uint, excluded bool) (int64, error) {
	if len(faceIDs) == 0 {
		return 0, nil
	}
	result := r.DB.WithContext(ctx).Model(&models.Face{}).
		Where("id IN ? AND person_id = ? AND excluded_from_matching = ?", faceIDs, personID, !excluded).
		Updates(map[string]interface{}{
			"excluded_from_matching": excluded,
			"updated_at":             time.Now().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update exclusion for person ID %d: %w", personID, result.Error)
	}
	return result.RowsAffected, nil
}

// ClearDescriptors drops the stored descriptor of faces belonging to
// personID. The face link and its assignment stay in place.
func (r *FaceRepository) ClearDescriptors(ctx context.Context, personID uint, faceIDs []uint) (int64, error) {
	if len(faceIDs) == 0 {
		return 0, nil
	}
	result := r.DB.WithContext(ctx).Model(&models.Face{}).
		Where("id IN ? AND person_id = ? AND descriptor IS NOT NULL", faceIDs, personID).
		Updates(map[string]interface{}{
			"descriptor":             gorm.Expr("NULL"),
			"excluded_from_matching": false,
			"updated_at":             time.Now().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear descriptors for person ID %d: %w", personID, result.Error)
	}
	return result.RowsAffected, nil
}

// PersonIDsWithDescriptors lists the people owning at least minCount
// descriptors that still take part in matching, ordered by id.
func (r *FaceRepository) PersonIDsWithDescriptors(ctx context.Context, minCount int) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&models.Face{}).
		Where("person_id IS NOT NULL AND descriptor IS NOT NULL AND excluded_from_matching = ?", false).
		Group("person_id").
		Having("COUNT(*) >= ?", minCount).
		Order("person_id ASC").
		Pluck("person_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list people with descriptors: %w", err)
	}
	return ids, nil
}
