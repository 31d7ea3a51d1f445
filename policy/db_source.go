package policy

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/models"
)

// DBSource reads the single integrity_settings row. A missing row, or zero
// columns within it, fall back to what Base supplies.
type DBSource struct {
	DB   *gorm.DB
	Base Source
}

// NewDBSource creates a DBSource layered over base.
func NewDBSource(db *gorm.DB, base Source) *DBSource {
	return &DBSource{DB: db, Base: base}
}

// Policy implements Source.
func (s *DBSource) Policy(ctx context.Context) (Policy, error) {
	base, err := s.Base.Policy(ctx)
	if err != nil {
		return Policy{}, err
	}

	var row models.IntegritySettings
	err = s.DB.WithContext(ctx).First(&row, models.IntegritySettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return base, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("failed to load integrity settings: %w", err)
	}
	p := Policy{
		MatchThreshold:    row.MatchThreshold,
		OutlierThreshold:  row.OutlierThreshold,
		VerifiedThreshold: row.VerifiedThreshold,
		UnknownConfidence: row.UnknownConfidence,
	}.Merge(base)
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid integrity settings: %w", err)
	}
	return p, nil
}
