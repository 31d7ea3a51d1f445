package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
)

const (
	DefaultPageSize           = 1000
	DefaultExistenceBatchSize = 500
)

// Keyed is implemented by models that can be scanned page by page.
type Keyed interface {
	Key() uint
}

// Scanner reads an unbounded relation in fixed-size windows ordered by id.
// A page shorter than PageSize ends the scan. Concurrent writers may cause a
// row to be seen twice or not at all; ScanAll drops the duplicates.
type Scanner struct {
	DB       *gorm.DB
	PageSize int
	// Columns limits the columns ForEachPage and ScanAll load; empty loads
	// every column. The id column must be included.
	Columns []string
}

// NewScanner creates a scanner; pageSize <= 0 selects DefaultPageSize.
func NewScanner(db *gorm.DB, pageSize int) *Scanner {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Scanner{DB: db, PageSize: pageSize}
}

// Select returns a copy of s that loads only columns.
func (s *Scanner) Select(columns ...string) *Scanner {
	cp := *s
	cp.Columns = columns
	return &cp
}

func (s *Scanner) pageSize() int {
	if s.PageSize <= 0 {
		return DefaultPageSize
	}
	return s.PageSize
}

// applyWhere adds a squirrel predicate to a GORM query. A nil predicate
// leaves the query untouched.
func applyWhere(tx *gorm.DB, pred sq.Sqlizer) (*gorm.DB, error) {
	if pred == nil {
		return tx, nil
	}
	sqlStr, args, err := pred.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build predicate: %w", err)
	}
	if sqlStr == "" {
		return tx, nil
	}
	return tx.Where(sqlStr, args...), nil
}

// ForEachPage streams every row matching pred to fn, one page at a time.
// A failed page read aborts the scan with an error; fn errors abort it too.
func ForEachPage[T Keyed](ctx context.Context, s *Scanner, pred sq.Sqlizer, fn func(page []T) error) error {
	size := s.pageSize()
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx, err := applyWhere(s.DB.WithContext(ctx), pred)
		if err != nil {
			return err
		}
		if len(s.Columns) > 0 {
			tx = tx.Select(s.Columns)
		}
		var page []T
		if err := tx.Order("id ASC").Offset(offset).Limit(size).Find(&page).Error; err != nil {
			return fmt.Errorf("failed to read page at offset %d: %w", offset, err)
		}
		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}
		if len(page) < size {
			return nil
		}
	}
}

// ScanAll returns every row matching pred as a single slice.
func ScanAll[T Keyed](ctx context.Context, s *Scanner, pred sq.Sqlizer) ([]T, error) {
	var out []T
	seen := make(map[uint]struct{})
	err := ForEachPage(ctx, s, pred, func(page []T) error {
		for _, row := range page {
			if _, dup := seen[row.Key()]; dup {
				continue
			}
			seen[row.Key()] = struct{}{}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScanDistinct returns the distinct non-NULL values of an id-valued column of
// model, read in windows ordered by that column. A value seen on an earlier
// page is not returned again when a concurrent insert shifts the window.
func ScanDistinct(ctx context.Context, s *Scanner, model interface{}, column string, pred sq.Sqlizer) ([]uint, error) {
	cond := sq.Sqlizer(sq.NotEq{column: nil})
	if pred != nil {
		cond = sq.And{cond, pred}
	}
	size := s.pageSize()
	var out []uint
	seen := make(map[uint]struct{})
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx, err := applyWhere(s.DB.WithContext(ctx).Model(model), cond)
		if err != nil {
			return nil, err
		}
		var page []uint
		err = tx.Distinct(column).Order(column + " ASC").Offset(offset).Limit(size).Pluck(column, &page).Error
		if err != nil {
			return nil, fmt.Errorf("failed to read distinct %s at offset %d: %w", column, offset, err)
		}
		for _, v := range page {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
		if len(page) < size {
			return out, nil
		}
	}
}

// Count returns the number of rows of model matching pred.
func Count(ctx context.Context, db *gorm.DB, model interface{}, pred sq.Sqlizer) (int64, error) {
	tx, err := applyWhere(db.WithContext(ctx).Model(model), pred)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// FindLimited returns at most limit rows matching pred, ordered by id.
func FindLimited[T any](ctx context.Context, db *gorm.DB, pred sq.Sqlizer, limit int) ([]T, error) {
	tx, err := applyWhere(db.WithContext(ctx), pred)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := tx.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read sample rows: %w", err)
	}
	return rows, nil
}

// ExistingIDs checks which of ids exist in model's table, batchSize ids per
// round-trip.
func ExistingIDs(ctx context.Context, db *gorm.DB, model interface{}, ids []uint, batchSize int) (map[uint]struct{}, error) {
	if batchSize <= 0 {
		batchSize = DefaultExistenceBatchSize
	}
	found := make(map[uint]struct{}, len(ids))
	for _, batch := range Chunk(ids, batchSize) {
		tx, err := applyWhere(db.WithContext(ctx).Model(model), sq.Eq{"id": batch})
		if err != nil {
			return nil, err
		}
		var present []uint
		if err := tx.Pluck("id", &present).Error; err != nil {
			return nil, fmt.Errorf("failed to check existence of %d ids: %w", len(batch), err)
		}
		for _, id := range present {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// MissingIDs returns the members of ids that have no row in model's table,
// preserving input order.
func MissingIDs(ctx context.Context, db *gorm.DB, model interface{}, ids []uint, batchSize int) ([]uint, error) {
	found, err := ExistingIDs(ctx, db, model, ids, batchSize)
	if err != nil {
		return nil, err
	}
	var missing []uint
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
