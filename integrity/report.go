package integrity

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/policy"
	"github.com/camden-git/mediasysintegrity/realtime"
)

// Stats holds the table sizes at audit time.
type Stats struct {
	Faces  int64 `json:"faces" yaml:"faces"`
	People int64 `json:"people" yaml:"people"`
	Images int64 `json:"images" yaml:"images"`
	Albums int64 `json:"albums" yaml:"albums"`
}

// IdentityIssues are reported apart from face link violations. A nil field
// means its detector failed; see Report.Errors.
type IdentityIssues struct {
	WithoutLinks    *int `json:"without_links" yaml:"without_links"`
	DuplicateGroups *int `json:"duplicate_groups" yaml:"duplicate_groups"`
}

// Report is the outcome of one audit run.
type Report struct {
	RunID          string                `json:"run_id" yaml:"run_id"`
	CheckedAt      time.Time             `json:"checked_at" yaml:"checked_at"`
	Policy         policy.Policy         `json:"policy" yaml:"policy"`
	Stats          Stats                 `json:"stats" yaml:"stats"`
	Violations     map[Category]int      `json:"violations" yaml:"violations"`
	IdentityIssues IdentityIssues        `json:"identity_issues" yaml:"identity_issues"`
	TotalIssues    int                   `json:"total_issues" yaml:"total_issues"`
	Details        map[Category][]Sample `json:"details" yaml:"details"`
	// Errors maps a detector (category or "stats") to its failure.
	Errors map[string]string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Healthy reports whether the run completed and found nothing actionable.
func (r *Report) Healthy() bool {
	return len(r.Errors) == 0 && r.TotalIssues == 0
}

type detector struct {
	category Category
	run      func(ctx context.Context) (Finding, error)
}

func (e *Engine) detectors(p policy.Policy) []detector {
	var out []detector
	for _, rule := range faceRules() {
		rule := rule
		out = append(out, detector{
			category: rule.category,
			run:      func(ctx context.Context) (Finding, error) { return e.detect(ctx, rule, p) },
		})
	}
	out = append(out, detector{category: PeopleWithoutLinks, run: e.detectPeopleWithoutLinks})
	if e.Duplicates != nil {
		out = append(out, detector{category: DuplicateIdentityGroups, run: e.detectDuplicateGroups})
	}
	return out
}

// Audit runs every detector and assembles a report. A failing detector does
// not abort the run: its category is left out of the counts and the failure
// is recorded in Errors. Only a policy that cannot be loaded fails the call.
func (e *Engine) Audit(ctx context.Context) (*Report, error) {
	p, err := e.Policy.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	report := &Report{
		RunID:      uuid.NewString(),
		CheckedAt:  time.Now().UTC(),
		Policy:     p,
		Violations: make(map[Category]int),
		Details:    make(map[Category][]Sample),
		Errors:     make(map[string]string),
	}
	e.Events.Broadcast(realtime.Event{Type: realtime.EventAuditStarted, RunID: report.RunID})
	log.Printf("integrity: audit %s started", report.RunID)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Concurrency)

	g.Go(func() error {
		stats, err := e.stats(gctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Errors["stats"] = err.Error()
			return nil
		}
		report.Stats = stats
		return nil
	})

	for _, d := range e.detectors(p) {
		d := d
		g.Go(func() error {
			finding, err := d.run(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("integrity: detector %s failed: %v", d.category, err)
				report.Errors[string(d.category)] = err.Error()
				return nil
			}
			report.record(d.category, finding)
			return nil
		})
	}
	// Detector goroutines never return an error; failures live in the report.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.TotalIssues = report.total()
	e.Events.Broadcast(realtime.Event{
		Type:  realtime.EventAuditCompleted,
		RunID: report.RunID,
		Total: int64(report.TotalIssues),
		Extra: map[string]interface{}{"errors": len(report.Errors)},
	})
	log.Printf("integrity: audit %s completed with %d issues and %d failed detectors",
		report.RunID, report.TotalIssues, len(report.Errors))
	return report, nil
}

func (r *Report) record(c Category, f Finding) {
	switch c {
	case PeopleWithoutLinks:
		n := f.Count
		r.IdentityIssues.WithoutLinks = &n
	case DuplicateIdentityGroups:
		n := f.Count
		r.IdentityIssues.DuplicateGroups = &n
	default:
		r.Violations[c] = f.Count
	}
	if len(f.Sample) > 0 {
		r.Details[c] = f.Sample
	}
}

// total sums every non-informational count that was actually computed.
func (r *Report) total() int {
	sum := 0
	for c, n := range r.Violations {
		if info, err := Lookup(c); err == nil && info.Severity == SeverityInfo {
			continue
		}
		sum += n
	}
	if r.IdentityIssues.WithoutLinks != nil {
		sum += *r.IdentityIssues.WithoutLinks
	}
	if r.IdentityIssues.DuplicateGroups != nil {
		sum += *r.IdentityIssues.DuplicateGroups
	}
	return sum
}

func (e *Engine) stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Faces, err = database.Count(ctx, e.DB, &models.Face{}, nil); err != nil {
		return s, err
	}
	if s.People, err = database.Count(ctx, e.DB, &models.Person{}, nil); err != nil {
		return s, err
	}
	if s.Images, err = database.Count(ctx, e.DB, &models.Image{}, nil); err != nil {
		return s, err
	}
	if s.Albums, err = database.Count(ctx, e.DB, &models.Album{}, nil); err != nil {
		return s, err
	}
	return s, nil
}
