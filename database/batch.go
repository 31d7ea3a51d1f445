package database

import (
	"context"
	"fmt"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultWriteBatchSize = 500

// BatchProgress describes one completed write round-trip.
type BatchProgress struct {
	Batch    int   // 1-based batch number
	Batches  int   // total batches planned
	Affected int64 // rows touched by this batch
	Total    int64 // rows touched so far
	// IDs are the rows this batch actually wrote. Rows of the batch that no
	// longer matched the guard are absent.
	IDs []uint
}

// Writer applies predicate-qualified updates and deletes in bounded batches.
// Each batch is its own unit of durability; a failed batch stops the run and
// the rows already written stay written.
type Writer struct {
	DB        *gorm.DB
	BatchSize int
	// Limiter paces delete batches; nil disables the pause.
	Limiter *rate.Limiter
	// Progress, when set, is called after every successful batch.
	Progress func(BatchProgress)
}

// NewWriter creates a writer. A positive deleteDelay spaces delete batches at
// least that far apart.
func NewWriter(db *gorm.DB, batchSize int, deleteDelay time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultWriteBatchSize
	}
	w := &Writer{DB: db, BatchSize: batchSize}
	if deleteDelay > 0 {
		w.Limiter = rate.NewLimiter(rate.Every(deleteDelay), 1)
	}
	return w
}

// WithProgress returns a shallow copy of w reporting batches to fn.
func (w *Writer) WithProgress(fn func(BatchProgress)) *Writer {
	cp := *w
	cp.Progress = fn
	return &cp
}

func (w *Writer) batchSize() int {
	if w.BatchSize <= 0 {
		return DefaultWriteBatchSize
	}
	return w.BatchSize
}

func (w *Writer) report(batch, batches int, ids []uint, total int64) {
	if w.Progress != nil {
		w.Progress(BatchProgress{Batch: batch, Batches: batches, Affected: int64(len(ids)), Total: total, IDs: ids})
	}
}

var returningID = clause.Returning{Columns: []clause.Column{{Name: "id"}}}

// newRowSlice returns a pointer to an empty slice of model's element type,
// the destination gorm scans RETURNING rows into.
func newRowSlice(model interface{}) reflect.Value {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(reflect.SliceOf(t))
}

func rowIDs(rows reflect.Value) []uint {
	rows = reflect.Indirect(rows)
	ids := make([]uint, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		ids = append(ids, uint(rows.Index(i).FieldByName("ID").Uint()))
	}
	return ids
}

// UpdateByIDs sets updates on the rows of model whose id is in ids and which
// still satisfy guard at write time. Rows already repaired no longer match the
// guard, which is what makes re-running a repair a no-op. The returned count is
// the number of rows changed so far, also when an error is returned.
func (w *Writer) UpdateByIDs(ctx context.Context, model interface{}, ids []uint, guard sq.Sqlizer, updates map[string]interface{}) (int64, error) {
	values := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	if _, ok := values["updated_at"]; !ok {
		values["updated_at"] = time.Now().Unix()
	}

	batches := Chunk(ids, w.batchSize())
	var total int64
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		cond := sq.Sqlizer(sq.Eq{"id": batch})
		if guard != nil {
			cond = sq.And{cond, guard}
		}
		rows := newRowSlice(model)
		tx, err := applyWhere(w.DB.WithContext(ctx).Model(rows.Interface()).Clauses(returningID), cond)
		if err != nil {
			return total, err
		}
		if err := tx.Updates(values).Error; err != nil {
			return total, fmt.Errorf("failed to update batch %d/%d: %w", i+1, len(batches), err)
		}
		written := rowIDs(rows)
		total += int64(len(written))
		w.report(i+1, len(batches), written, total)
	}
	return total, nil
}

// DeleteByIDs removes the rows of model whose id is in ids and which still
// satisfy guard, pausing between batches when a limiter is configured.
func (w *Writer) DeleteByIDs(ctx context.Context, model interface{}, ids []uint, guard sq.Sqlizer) (int64, error) {
	batches := Chunk(ids, w.batchSize())
	var total int64
	for i, batch := range batches {
		if w.Limiter != nil {
			if err := w.Limiter.Wait(ctx); err != nil {
				return total, err
			}
		} else if err := ctx.Err(); err != nil {
			return total, err
		}
		cond := sq.Sqlizer(sq.Eq{"id": batch})
		if guard != nil {
			cond = sq.And{cond, guard}
		}
		rows := newRowSlice(model)
		tx, err := applyWhere(w.DB.WithContext(ctx).Clauses(returningID), cond)
		if err != nil {
			return total, err
		}
		if err := tx.Delete(rows.Interface()).Error; err != nil {
			return total, fmt.Errorf("failed to delete batch %d/%d: %w", i+1, len(batches), err)
		}
		written := rowIDs(rows)
		total += int64(len(written))
		w.report(i+1, len(batches), written, total)
	}
	return total, nil
}
