package integrity

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/policy"
)

// Sample is one offending record included in a report.
type Sample struct {
	ID         uint     `json:"id" yaml:"id"`
	ImageID    uint     `json:"image_id,omitempty" yaml:"image_id,omitempty"`
	PersonID   *uint    `json:"person_id,omitempty" yaml:"person_id,omitempty"`
	PersonName string   `json:"person_name,omitempty" yaml:"person_name,omitempty"`
	Confidence *float64 `json:"recognition_confidence,omitempty" yaml:"recognition_confidence,omitempty"`
	Verified   bool     `json:"verified" yaml:"verified"`
	Note       string   `json:"note,omitempty" yaml:"note,omitempty"`
}

// Finding is the output of one detector.
type Finding struct {
	Count  int      `json:"count"`
	Sample []Sample `json:"sample"`
}

// faceSummaryColumns are the face columns detectors and repairs read. The
// descriptor BLOB is left out so large backlogs stay small in memory.
var faceSummaryColumns = []string{"id", "image_id", "person_id", "recognition_confidence", "verified"}

func faceSample(f models.Face) Sample {
	return Sample{
		ID:         f.ID,
		ImageID:    f.ImageID,
		PersonID:   f.PersonID,
		Confidence: f.RecognitionConfidence,
		Verified:   f.Verified,
	}
}

func (e *Engine) sampleOf(faces []models.Face) []Sample {
	n := len(faces)
	if n > e.SampleSize {
		n = e.SampleSize
	}
	out := make([]Sample, 0, n)
	for _, f := range faces[:n] {
		out = append(out, faceSample(f))
	}
	return out
}

// Detect runs the detector for a single face category.
func (e *Engine) Detect(ctx context.Context, c Category) (Finding, error) {
	rule, ok := lookupRule(c)
	if !ok {
		return Finding{}, fmt.Errorf("%w: %q has no face detector", ErrUnknownCategory, c)
	}
	p, err := e.Policy.Policy(ctx)
	if err != nil {
		return Finding{}, fmt.Errorf("failed to load policy: %w", err)
	}
	return e.detect(ctx, rule, p)
}

func (e *Engine) detect(ctx context.Context, rule faceRule, p policy.Policy) (Finding, error) {
	switch {
	case rule.anti != nil, rule.keep != nil:
		faces, err := e.offendingFaces(ctx, rule, p)
		if err != nil {
			return Finding{}, err
		}
		return Finding{Count: len(faces), Sample: e.sampleOf(faces)}, nil
	default:
		pred := rule.where(p)
		n, err := database.Count(ctx, e.DB, &models.Face{}, pred)
		if err != nil {
			return Finding{}, err
		}
		faces, err := database.FindLimited[models.Face](ctx, e.DB, pred, e.SampleSize)
		if err != nil {
			return Finding{}, err
		}
		return Finding{Count: int(n), Sample: e.sampleOf(faces)}, nil
	}
}

// offendingFaces materializes every row violating rule, using the paginated
// scanner so the result is not limited to one page.
func (e *Engine) offendingFaces(ctx context.Context, rule faceRule, p policy.Policy) ([]models.Face, error) {
	if rule.anti != nil {
		return e.danglingFaces(ctx, rule.anti)
	}

	var out []models.Face
	seen := make(map[uint]struct{})
	scanner := e.Scanner.Select(faceSummaryColumns...)
	err := database.ForEachPage(ctx, scanner, rule.where(p), func(page []models.Face) error {
		for _, f := range page {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			seen[f.ID] = struct{}{}
			if rule.keep == nil || rule.keep(f, p) {
				out = append(out, f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// danglingFaces collects the distinct referenced ids, checks which exist in
// batches, and loads the faces pointing at the missing ones.
func (e *Engine) danglingFaces(ctx context.Context, a *antiJoin) ([]models.Face, error) {
	referenced, err := database.ScanDistinct(ctx, e.Scanner, &models.Face{}, a.column, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to collect referenced %s: %w", a.column, err)
	}
	missing, err := database.MissingIDs(ctx, e.DB, a.target, referenced, e.ExistenceBatchSize)
	if err != nil {
		return nil, err
	}

	var out []models.Face
	seen := make(map[uint]struct{})
	scanner := e.Scanner.Select(faceSummaryColumns...)
	for _, batch := range database.Chunk(missing, e.ExistenceBatchSize) {
		faces, err := database.ScanAll[models.Face](ctx, scanner, sq.Eq{a.column: batch})
		if err != nil {
			return nil, err
		}
		for _, f := range faces {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			seen[f.ID] = struct{}{}
			out = append(out, f)
		}
	}
	return out, nil
}

// offendingIDs returns the ids a repair for rule should consider.
func (e *Engine) offendingIDs(ctx context.Context, rule faceRule, p policy.Policy) ([]uint, error) {
	if rule.anti == nil && rule.keep == nil {
		return database.ScanDistinct(ctx, e.Scanner, &models.Face{}, "id", rule.where(p))
	}
	faces, err := e.offendingFaces(ctx, rule, p)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(faces))
	for i, f := range faces {
		ids[i] = f.ID
	}
	return ids, nil
}

// peopleWithoutLinks returns the ids of people no face link references.
func (e *Engine) peopleWithoutLinks(ctx context.Context) ([]uint, error) {
	people, err := database.ScanDistinct(ctx, e.Scanner, &models.Person{}, "id", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	linked, err := database.ScanDistinct(ctx, e.Scanner, &models.Face{}, "person_id", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked people: %w", err)
	}
	linkedSet := make(map[uint]struct{}, len(linked))
	for _, id := range linked {
		linkedSet[id] = struct{}{}
	}
	var out []uint
	for _, id := range people {
		if _, ok := linkedSet[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) detectPeopleWithoutLinks(ctx context.Context) (Finding, error) {
	ids, err := e.peopleWithoutLinks(ctx)
	if err != nil {
		return Finding{}, err
	}
	head := ids
	if len(head) > e.SampleSize {
		head = head[:e.SampleSize]
	}
	var people []models.Person
	if len(head) > 0 {
		if err := e.DB.WithContext(ctx).Where("id IN ?", head).Order("id ASC").Find(&people).Error; err != nil {
			return Finding{}, fmt.Errorf("failed to load sample people: %w", err)
		}
	}
	sample := make([]Sample, 0, len(people))
	for _, person := range people {
		sample = append(sample, Sample{ID: person.ID, PersonName: person.PrimaryName})
	}
	return Finding{Count: len(ids), Sample: sample}, nil
}

func (e *Engine) detectDuplicateGroups(ctx context.Context) (Finding, error) {
	groups, err := e.Duplicates.FindGroups(ctx)
	if err != nil {
		return Finding{}, err
	}
	sample := make([]Sample, 0, e.SampleSize)
	for _, g := range groups {
		if len(sample) == e.SampleSize {
			break
		}
		first := g.Members[0]
		sample = append(sample, Sample{
			ID:         first.ID,
			PersonName: first.Name,
			Note:       fmt.Sprintf("%s=%s (%d members)", g.MatchField, g.MatchValue, len(g.Members)),
		})
	}
	return Finding{Count: len(groups), Sample: sample}, nil
}
