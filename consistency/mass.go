package consistency

import (
	"context"
	"fmt"
	"log"

	"github.com/camden-git/mediasysintegrity/realtime"
)

// MassOptions controls a mass audit.
type MassOptions struct {
	// ExcludeOutliers excludes every outlier found.
	ExcludeOutliers bool `json:"exclude_outliers"`
	// RebuildIndex asks the recognition service for one index rebuild after
	// all exclusions, and only when something was excluded.
	RebuildIndex bool `json:"rebuild_index"`
}

// MassResult aggregates a mass audit.
type MassResult struct {
	IdentitiesAudited      int             `json:"identities_audited" yaml:"identities_audited"`
	IdentitiesWithProblems int             `json:"identities_with_problems" yaml:"identities_with_problems"`
	TotalOutliers          int             `json:"total_outliers" yaml:"total_outliers"`
	Excluded               int64           `json:"excluded" yaml:"excluded"`
	IndexRebuilt           bool            `json:"index_rebuilt" yaml:"index_rebuilt"`
	RebuildError           string          `json:"rebuild_error,omitempty" yaml:"rebuild_error,omitempty"`
	Problems               []*Result       `json:"problems" yaml:"problems"`
	Errors                 map[uint]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// AuditAll audits every identity with at least two accepted descriptors. A
// failure on one identity is recorded and the run continues.
func (a *Auditor) AuditAll(ctx context.Context, opts MassOptions) (*MassResult, error) {
	p, err := a.Policy.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	ids, err := a.Faces.PersonIDsWithDescriptors(ctx, 2)
	if err != nil {
		return nil, err
	}

	out := &MassResult{Problems: []*Result{}, Errors: make(map[uint]string)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := a.audit(ctx, id, p)
		if err != nil {
			out.Errors[id] = err.Error()
			continue
		}
		out.IdentitiesAudited++
		if res.OutlierCount == 0 {
			continue
		}
		out.IdentitiesWithProblems++
		out.TotalOutliers += res.OutlierCount
		out.Problems = append(out.Problems, res)

		if opts.ExcludeOutliers {
			n, err := a.Exclude(ctx, id, res.OutlierIDs())
			out.Excluded += n
			if err != nil {
				out.Errors[id] = err.Error()
			}
		}
	}

	if opts.RebuildIndex && out.Excluded > 0 {
		a.rebuild(ctx, out)
	}
	log.Printf("consistency: mass audit of %d identities found %d outliers in %d identities",
		out.IdentitiesAudited, out.TotalOutliers, out.IdentitiesWithProblems)
	return out, nil
}

func (a *Auditor) rebuild(ctx context.Context, out *MassResult) {
	if a.Rebuilder == nil {
		out.RebuildError = ErrRebuildDisabled.Error()
		return
	}
	if err := a.Rebuilder.RebuildIndex(ctx); err != nil {
		log.Printf("consistency: index rebuild failed: %v", err)
		out.RebuildError = err.Error()
		a.Events.Broadcast(realtime.Event{Type: realtime.EventIndexRebuild, Error: err.Error()})
		return
	}
	out.IndexRebuilt = true
	a.Events.Broadcast(realtime.Event{Type: realtime.EventIndexRebuild, Affected: out.Excluded})
}
