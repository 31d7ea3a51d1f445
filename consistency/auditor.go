// Package consistency checks that the descriptors assigned to one person
// agree with each other.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"log"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/policy"
	"github.com/camden-git/mediasysintegrity/realtime"
	"github.com/camden-git/mediasysintegrity/repository"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrNoLinks          = errors.New("no face links given")
	ErrRebuildDisabled  = errors.New("no recognition service configured")
)

// Status bands for an audited identity.
const (
	StatusHealthy      = "healthy"
	StatusWarning      = "warning"
	StatusCritical     = "critical"
	StatusInsufficient = "insufficient"
)

// warningOutlierRatio is the largest outlier share still rated a warning.
const warningOutlierRatio = 0.2

// IndexRebuilder asks the recognition service to rebuild its match index.
type IndexRebuilder interface {
	RebuildIndex(ctx context.Context) error
}

// Entry is one descriptor of the audited identity.
type Entry struct {
	LinkID               uint    `json:"link_id" yaml:"link_id"`
	ImageID              uint    `json:"image_id" yaml:"image_id"`
	SimilarityToCentroid float64 `json:"similarity_to_centroid" yaml:"similarity_to_centroid"`
	IsOutlier            bool    `json:"is_outlier" yaml:"is_outlier"`
	IsExcluded           bool    `json:"is_excluded" yaml:"is_excluded"`
	Verified             bool    `json:"verified" yaml:"verified"`
}

// Result is the consistency audit of one identity.
type Result struct {
	PersonID           uint    `json:"person_id" yaml:"person_id"`
	PersonName         string  `json:"person_name" yaml:"person_name"`
	Status             string  `json:"status" yaml:"status"`
	TotalDescriptors   int     `json:"total_descriptors" yaml:"total_descriptors"`
	OverallConsistency float64 `json:"overall_consistency" yaml:"overall_consistency"`
	OutlierCount       int     `json:"outlier_count" yaml:"outlier_count"`
	ExcludedCount      int     `json:"excluded_count" yaml:"excluded_count"`
	OutlierThreshold   float64 `json:"outlier_threshold" yaml:"outlier_threshold"`
	Entries            []Entry `json:"entries" yaml:"entries"`
}

// OutlierIDs returns the link ids flagged as outliers.
func (r *Result) OutlierIDs() []uint {
	var ids []uint
	for _, e := range r.Entries {
		if e.IsOutlier {
			ids = append(ids, e.LinkID)
		}
	}
	return ids
}

// Auditor runs consistency audits and applies exclusions.
type Auditor struct {
	Scanner   *database.Scanner
	Faces     repository.FaceRepositoryInterface
	People    repository.PersonRepositoryInterface
	Policy    policy.Source
	Events    realtime.Publisher
	Rebuilder IndexRebuilder
}

// NewAuditor creates an auditor. rebuilder may be nil, which disables index
// rebuilds; a nil publisher discards events.
func NewAuditor(db *gorm.DB, scanner *database.Scanner, src policy.Source, events realtime.Publisher, rebuilder IndexRebuilder) *Auditor {
	if events == nil {
		events = realtime.Discard{}
	}
	return &Auditor{
		Scanner:   scanner,
		Faces:     repository.NewFaceRepository(db),
		People:    repository.NewPersonRepository(db),
		Policy:    src,
		Events:    events,
		Rebuilder: rebuilder,
	}
}

// AuditIdentity scores every descriptor of personID against the centroid of
// the descriptors still accepted for matching.
func (a *Auditor) AuditIdentity(ctx context.Context, personID uint) (*Result, error) {
	p, err := a.Policy.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return a.audit(ctx, personID, p)
}

func (a *Auditor) audit(ctx context.Context, personID uint, p policy.Policy) (*Result, error) {
	person, err := a.People.GetByID(ctx, personID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrIdentityNotFound, personID)
		}
		return nil, err
	}

	faces, err := database.ScanAll[models.Face](ctx, a.Scanner, sq.And{
		sq.Eq{"person_id": personID},
		sq.NotEq{"descriptor": nil},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptors for person %d: %w", personID, err)
	}
	return score(person, faces, p.OutlierThreshold), nil
}

// score is the pure part of an identity audit.
func score(person *models.Person, faces []models.Face, threshold float64) *Result {
	res := &Result{
		PersonID:         person.ID,
		PersonName:       person.PrimaryName,
		OutlierThreshold: threshold,
		Entries:          make([]Entry, 0, len(faces)),
	}

	var accepted [][]float32
	vectors := make([][]float32, len(faces))
	for i, f := range faces {
		vectors[i] = f.DescriptorVector()
		if !f.ExcludedFromMatching {
			accepted = append(accepted, vectors[i])
		}
	}
	res.TotalDescriptors = len(faces)

	dim := dominantDim(accepted)
	center := centroid(accepted, dim)

	var simSum float64
	for i, f := range faces {
		sim := 0.0
		if len(vectors[i]) == dim {
			sim = cosineSimilarity(vectors[i], center)
		}
		e := Entry{
			LinkID:               f.ID,
			ImageID:              f.ImageID,
			SimilarityToCentroid: sim,
			IsExcluded:           f.ExcludedFromMatching,
			Verified:             f.Verified,
		}
		if e.IsExcluded {
			res.ExcludedCount++
		} else {
			simSum += sim
			// A single descriptor is its own centroid and cannot be judged.
			if len(accepted) >= 2 && sim < threshold {
				e.IsOutlier = true
				res.OutlierCount++
			}
		}
		res.Entries = append(res.Entries, e)
	}

	if len(accepted) > 0 {
		res.OverallConsistency = simSum / float64(len(accepted))
	}
	switch {
	case len(accepted) < 2:
		res.Status = StatusInsufficient
	case res.OutlierCount == 0:
		res.Status = StatusHealthy
	case float64(res.OutlierCount) <= warningOutlierRatio*float64(len(accepted)):
		res.Status = StatusWarning
	default:
		res.Status = StatusCritical
	}
	return res
}

// Exclude stops the given links' descriptors from taking part in matching.
// The links keep their person assignment.
func (a *Auditor) Exclude(ctx context.Context, personID uint, linkIDs []uint) (int64, error) {
	if len(linkIDs) == 0 {
		return 0, ErrNoLinks
	}
	if err := a.requirePerson(ctx, personID); err != nil {
		return 0, err
	}
	n, err := a.Faces.SetExcluded(ctx, personID, linkIDs, true)
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Printf("consistency: excluded %d descriptors of person %d", n, personID)
		a.Events.Broadcast(realtime.Event{
			Type:     realtime.EventConsistencyExcluded,
			PersonID: personID,
			Affected: n,
			Extra:    map[string]interface{}{"link_ids": linkIDs},
		})
	}
	return n, nil
}

// Restore reverses Exclude.
func (a *Auditor) Restore(ctx context.Context, personID uint, linkIDs []uint) (int64, error) {
	if len(linkIDs) == 0 {
		return 0, ErrNoLinks
	}
	if err := a.requirePerson(ctx, personID); err != nil {
		return 0, err
	}
	return a.Faces.SetExcluded(ctx, personID, linkIDs, false)
}

// Clear deletes the stored descriptors of the given links. This cannot be
// undone; the links and their assignment remain.
func (a *Auditor) Clear(ctx context.Context, personID uint, linkIDs []uint) (int64, error) {
	if len(linkIDs) == 0 {
		return 0, ErrNoLinks
	}
	if err := a.requirePerson(ctx, personID); err != nil {
		return 0, err
	}
	n, err := a.Faces.ClearDescriptors(ctx, personID, linkIDs)
	if err == nil && n > 0 {
		log.Printf("consistency: cleared %d descriptors of person %d", n, personID)
	}
	return n, err
}

// ExcludeOutliers audits personID and excludes every outlier found.
func (a *Auditor) ExcludeOutliers(ctx context.Context, personID uint) (*Result, int64, error) {
	res, err := a.AuditIdentity(ctx, personID)
	if err != nil {
		return nil, 0, err
	}
	ids := res.OutlierIDs()
	if len(ids) == 0 {
		return res, 0, nil
	}
	n, err := a.Exclude(ctx, personID, ids)
	return res, n, err
}

func (a *Auditor) requirePerson(ctx context.Context, personID uint) error {
	if _, err := a.People.GetByID(ctx, personID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrIdentityNotFound, personID)
		}
		return err
	}
	return nil
}
