package duplicates

import (
	"context"
	"errors"
	"fmt"
	"log"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/realtime"
)

// MergeRequest folds MergeIDs into KeepID.
type MergeRequest struct {
	KeepID   uint   `json:"keep_id"`
	MergeIDs []uint `json:"merge_ids"`
}

// MergeResult reports what a merge changed. On failure it still carries the
// progress made before the failing step.
type MergeResult struct {
	KeepID       uint     `json:"keep_id" yaml:"keep_id"`
	MovedLinks   int64    `json:"moved_links" yaml:"moved_links"`
	MergedFields []string `json:"merged_fields" yaml:"merged_fields"`
	AliasesAdded int64    `json:"aliases_added" yaml:"aliases_added"`
	DeletedCount int64    `json:"deleted_count" yaml:"deleted_count"`
}

// DeleteResult reports a delete-with-unlink.
type DeleteResult struct {
	PersonID      uint  `json:"person_id" yaml:"person_id"`
	UnlinkedLinks int64 `json:"unlinked_links" yaml:"unlinked_links"`
	Deleted       bool  `json:"deleted" yaml:"deleted"`
}

func (req MergeRequest) normalized() (MergeRequest, error) {
	if req.KeepID == 0 {
		return req, fmt.Errorf("%w: keep_id is required", ErrInvalidMerge)
	}
	seen := make(map[uint]struct{}, len(req.MergeIDs))
	out := MergeRequest{KeepID: req.KeepID}
	for _, id := range req.MergeIDs {
		if id == 0 {
			return req, fmt.Errorf("%w: merge_ids contains 0", ErrInvalidMerge)
		}
		if id == req.KeepID {
			return req, fmt.Errorf("%w: identity %d cannot be merged into itself", ErrInvalidMerge, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out.MergeIDs = append(out.MergeIDs, id)
	}
	if len(out.MergeIDs) == 0 {
		return req, fmt.Errorf("%w: merge_ids is empty", ErrInvalidMerge)
	}
	return out, nil
}

// Merge consolidates the merge identities into the keep identity in four
// steps, each safe to repeat:
//
//  1. reassign their face links to the keep identity, unverified, at the
//     match threshold
//  2. fill empty fields of the keep identity, most recent merge identity first
//  3. record their names and aliases as aliases of the keep identity
//  4. delete them
//
// Every referenced identity must exist or nothing is changed. After a
// partial failure, retry with the merge ids that still exist.
func (r *Resolver) Merge(ctx context.Context, req MergeRequest) (MergeResult, error) {
	req, err := req.normalized()
	if err != nil {
		return MergeResult{}, err
	}
	result := MergeResult{KeepID: req.KeepID, MergedFields: []string{}}

	keep, err := r.People.GetByID(ctx, req.KeepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, fmt.Errorf("%w: keep identity %d", ErrIdentityNotFound, req.KeepID)
		}
		return result, err
	}
	merging, err := r.People.GetByIDsByRecency(ctx, req.MergeIDs)
	if err != nil {
		return result, err
	}
	if missing := missingPeople(req.MergeIDs, merging); len(missing) > 0 {
		return result, fmt.Errorf("%w: merge identities %v", ErrIdentityNotFound, missing)
	}

	p, err := r.Policy.Policy(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load policy: %w", err)
	}

	owned := sq.Eq{"person_id": req.MergeIDs}
	linkIDs, err := database.ScanDistinct(ctx, r.Scanner, &models.Face{}, "id", owned)
	if err != nil {
		return result, fmt.Errorf("failed to collect face links to move: %w", err)
	}
	result.MovedLinks, err = r.Writer.UpdateByIDs(ctx, &models.Face{}, linkIDs, owned, map[string]interface{}{
		"person_id":              req.KeepID,
		"verified":               false,
		"recognition_confidence": p.MatchThreshold,
	})
	if err != nil {
		return result, fmt.Errorf("failed to reassign face links: %w", err)
	}

	fields := coalesce(*keep, merging)
	if len(fields) > 0 {
		if err := r.People.UpdateFields(ctx, keep.ID, fields); err != nil {
			return result, fmt.Errorf("failed to merge fields: %w", err)
		}
		for _, f := range mergeableFields {
			if _, ok := fields[f]; ok {
				result.MergedFields = append(result.MergedFields, f)
			}
		}
	}

	result.AliasesAdded, err = r.People.AddAliases(ctx, keep.ID, carriedNames(*keep, merging))
	if err != nil {
		return result, err
	}
	if _, err := r.People.DeleteAliasesByPersonIDs(ctx, req.MergeIDs); err != nil {
		return result, err
	}

	result.DeletedCount, err = r.People.DeleteMany(ctx, req.MergeIDs)
	if err != nil {
		return result, err
	}

	log.Printf("duplicates: merged %v into %d, moved %d links, filled %v",
		req.MergeIDs, req.KeepID, result.MovedLinks, result.MergedFields)
	r.Events.Broadcast(realtime.Event{
		Type:     realtime.EventMergeCompleted,
		PersonID: req.KeepID,
		Affected: result.MovedLinks,
		Total:    result.DeletedCount,
		Extra:    map[string]interface{}{"merge_ids": req.MergeIDs, "merged_fields": result.MergedFields},
	})
	return result, nil
}

func missingPeople(ids []uint, found []models.Person) []uint {
	present := make(map[uint]struct{}, len(found))
	for _, p := range found {
		present[p.ID] = struct{}{}
	}
	var missing []uint
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// coalesce returns, for every empty mergeable field of keep, the first
// non-empty value among merging (which is ordered most recent first).
func coalesce(keep models.Person, merging []models.Person) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range mergeableFields {
		if keep.StringField(f) != "" {
			continue
		}
		for _, p := range merging {
			if v := p.StringField(f); v != "" {
				fields[f] = v
				break
			}
		}
	}
	return fields
}

// carriedNames lists the names and aliases of merging that keep does not
// already answer to, compared case-insensitively.
func carriedNames(keep models.Person, merging []models.Person) []string {
	fold := cases.Fold()
	known := map[string]struct{}{fold.String(keep.PrimaryName): {}}
	for _, a := range keep.Aliases {
		known[fold.String(a.Name)] = struct{}{}
	}

	var names []string
	add := func(name string) {
		if name == "" {
			return
		}
		key := fold.String(name)
		if _, ok := known[key]; ok {
			return
		}
		known[key] = struct{}{}
		names = append(names, name)
	}
	for _, p := range merging {
		add(p.PrimaryName)
		for _, a := range p.Aliases {
			add(a.Name)
		}
	}
	return names
}

// DeleteWithUnlink detaches every face link from personID (unassigned,
// unverified, no confidence) and then deletes the identity and its aliases.
func (r *Resolver) DeleteWithUnlink(ctx context.Context, personID uint) (DeleteResult, error) {
	result := DeleteResult{PersonID: personID}
	if _, err := r.People.GetByID(ctx, personID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, fmt.Errorf("%w: %d", ErrIdentityNotFound, personID)
		}
		return result, err
	}

	owned := sq.Eq{"person_id": personID}
	linkIDs, err := database.ScanDistinct(ctx, r.Scanner, &models.Face{}, "id", owned)
	if err != nil {
		return result, fmt.Errorf("failed to collect face links to unlink: %w", err)
	}
	result.UnlinkedLinks, err = r.Writer.UpdateByIDs(ctx, &models.Face{}, linkIDs, owned, map[string]interface{}{
		"person_id":              gorm.Expr("NULL"),
		"verified":               false,
		"recognition_confidence": gorm.Expr("NULL"),
	})
	if err != nil {
		return result, fmt.Errorf("failed to unlink face links: %w", err)
	}

	if _, err := r.People.DeleteAliasesByPersonIDs(ctx, []uint{personID}); err != nil {
		return result, err
	}
	if err := r.People.Delete(ctx, personID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return result, err
	}
	result.Deleted = true

	log.Printf("duplicates: deleted person %d after unlinking %d face links", personID, result.UnlinkedLinks)
	r.Events.Broadcast(realtime.Event{
		Type:     realtime.EventPersonDeleted,
		PersonID: personID,
		Affected: result.UnlinkedLinks,
	})
	return result, nil
}
