package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/models"
)

// PersonRepository handles database operations for Person and related Alias entities
type PersonRepository struct {
	DB *gorm.DB
	// BatchSize bounds the number of ids sent per IN (...) query.
	BatchSize int
}

// NewPersonRepository creates a new instance of PersonRepository
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{DB: db, BatchSize: database.DefaultExistenceBatchSize}
}

// GetByID retrieves a person by their ID, preloading Aliases
func (r *PersonRepository) GetByID(ctx context.Context, id uint) (*models.Person, error) {
	var person models.Person
	err := r.DB.WithContext(ctx).Preload("Aliases").First(&person, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get person by ID %d: %w", id, err)
	}
	return &person, nil
}

// GetByIDsByRecency retrieves the people with the given ids, most recently
// created first. Missing ids are silently absent from the result.
func (r *PersonRepository) GetByIDsByRecency(ctx context.Context, ids []uint) ([]models.Person, error) {
	var people []models.Person
	if len(ids) == 0 {
		return people, nil
	}
	err := r.DB.WithContext(ctx).Preload("Aliases").
		Where("id IN ?", ids).
		Order("created_at DESC").Order("id DESC").
		Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get people by IDs: %w", err)
	}
	return people, nil
}

// UpdateFields sets the given columns on a person and bumps updated_at.
func (r *PersonRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values["updated_at"] = time.Now().Unix()

	result := r.DB.WithContext(ctx).Model(&models.Person{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update person ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a person by their ID
func (r *PersonRepository) Delete(ctx context.Context, id uint) error {
	result := r.DB.WithContext(ctx).Delete(&models.Person{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete person ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMany removes the people with the given ids. Ids that are already
// gone are skipped, so the call is safe to repeat.
func (r *PersonRepository) DeleteMany(ctx context.Context, ids []uint) (int64, error) {
	var total int64
	for _, batch := range database.Chunk(ids, r.BatchSize) {
		result := r.DB.WithContext(ctx).Where("id IN ?", batch).Delete(&models.Person{})
		if result.Error != nil {
			return total, fmt.Errorf("failed to delete %d people: %w", len(batch), result.Error)
		}
		total += result.RowsAffected
	}
	return total, nil
}

// AddAliases records names as aliases of a person. Names the person already
// carries are ignored.
func (r *PersonRepository) AddAliases(ctx context.Context, personID uint, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	aliases := make([]models.Alias, 0, len(names))
	for _, name := range names {
		aliases = append(aliases, models.Alias{PersonID: personID, Name: name})
	}
	result := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&aliases)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to add aliases for person ID %d: %w", personID, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteAliasesByPersonIDs removes every alias owned by the given people.
func (r *PersonRepository) DeleteAliasesByPersonIDs(ctx context.Context, personIDs []uint) (int64, error) {
	var total int64
	for _, batch := range database.Chunk(personIDs, r.BatchSize) {
		result := r.DB.WithContext(ctx).Where("person_id IN ?", batch).Delete(&models.Alias{})
		if result.Error != nil {
			return total, fmt.Errorf("failed to delete aliases: %w", result.Error)
		}
		total += result.RowsAffected
	}
	return total, nil
}

// LinkCounts returns the number of face links per person. People without
// links are absent from the map.
func (r *PersonRepository) LinkCounts(ctx context.Context, personIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(personIDs))
	for _, batch := range database.Chunk(personIDs, r.BatchSize) {
		var rows []struct {
			PersonID uint
			N        int64
		}
		err := r.DB.WithContext(ctx).Model(&models.Face{}).
			Select("person_id, COUNT(*) AS n").
			Where("person_id IN ?", batch).
			Group("person_id").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count face links: %w", err)
		}
		for _, row := range rows {
			counts[row.PersonID] = row.N
		}
	}
	return counts, nil
}
