package integrity

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/realtime"
)

// RepairResult is the outcome of repairing one category. Repair never returns
// an error for a bad category or a failed write; it reports them here.
type RepairResult struct {
	RunID      string   `json:"run_id" yaml:"run_id"`
	Category   Category `json:"category" yaml:"category"`
	Success    bool     `json:"success" yaml:"success"`
	Fixed      int64    `json:"fixed" yaml:"fixed"`
	Candidates int      `json:"candidates" yaml:"candidates"`
	// IDs lists rows written by successful batches, capped at the engine's
	// repair id limit.
	IDs   []uint `json:"updated_or_deleted_ids" yaml:"updated_or_deleted_ids"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Repair applies the fix for category c to every current offender. Running it
// again without intervening writes reports Fixed == 0.
func (e *Engine) Repair(ctx context.Context, c Category) RepairResult {
	return e.repair(ctx, uuid.NewString(), c)
}

func (e *Engine) repair(ctx context.Context, runID string, c Category) RepairResult {
	result := RepairResult{RunID: runID, Category: c, IDs: []uint{}}

	info, err := Lookup(c)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	rule, ok := lookupRule(c)
	if !info.AutoFixable || !ok || !rule.fixable() {
		result.Error = fmt.Errorf("%w: %s", ErrNotAutoFixable, c).Error()
		return result
	}

	p, err := e.Policy.Policy(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("failed to load policy: %v", err)
		return result
	}

	ids, err := e.offendingIDs(ctx, rule, p)
	if err != nil {
		result.Error = fmt.Sprintf("failed to collect offending links: %v", err)
		return result
	}
	result.Candidates = len(ids)
	if len(ids) == 0 {
		result.Success = true
		e.publishRepairCompleted(result)
		return result
	}

	var mu sync.Mutex
	writer := e.Writer.WithProgress(func(bp database.BatchProgress) {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range bp.IDs {
			if len(result.IDs) >= e.RepairIDLimit {
				break
			}
			result.IDs = append(result.IDs, id)
		}
		e.Events.Broadcast(realtime.Event{
			Type:     realtime.EventRepairBatch,
			RunID:    runID,
			Category: string(c),
			Batch:    bp.Batch,
			Batches:  bp.Batches,
			Affected: bp.Affected,
			Total:    bp.Total,
		})
	})

	guard := rule.guardFor(p)
	if rule.remove {
		result.Fixed, err = writer.DeleteByIDs(ctx, &models.Face{}, ids, guard)
	} else {
		result.Fixed, err = writer.UpdateByIDs(ctx, &models.Face{}, ids, guard, rule.updates(p))
	}
	if err != nil {
		log.Printf("integrity: repair %s of %s stopped after %d rows: %v", runID, c, result.Fixed, err)
		result.Error = err.Error()
	} else {
		result.Success = true
		log.Printf("integrity: repair %s of %s fixed %d of %d candidates", runID, c, result.Fixed, result.Candidates)
	}
	e.publishRepairCompleted(result)
	return result
}

func (e *Engine) publishRepairCompleted(r RepairResult) {
	e.Events.Broadcast(realtime.Event{
		Type:     realtime.EventRepairCompleted,
		RunID:    r.RunID,
		Category: string(r.Category),
		Total:    r.Fixed,
		Error:    r.Error,
	})
}

// RepairAll runs every auto-fixable repair once in catalog order. A failed
// category does not stop the ones after it.
func (e *Engine) RepairAll(ctx context.Context) []RepairResult {
	runID := uuid.NewString()
	var results []RepairResult
	for _, info := range catalog {
		if !info.AutoFixable {
			continue
		}
		if err := ctx.Err(); err != nil {
			results = append(results, RepairResult{
				RunID: runID, Category: info.Category, IDs: []uint{}, Error: err.Error(),
			})
			continue
		}
		results = append(results, e.repair(ctx, runID, info.Category))
	}
	return results
}
