package database

import (
	"context"
	"errors"
	"fmt"

	"vizmigrate/pkg/types"

	"gorm.io/gorm"
)

// ErrRowNotFound is returned when a chart row id matches nothing.
var ErrRowNotFound = errors.New("slice not found")

// SliceStore reads and writes chart rows. Rows are paged by id so callers can
// resume after the last id they handled.
type SliceStore struct {
	db *gorm.DB
}

// NewSliceStore wraps db, which may be a transaction.
func NewSliceStore(db *gorm.DB) *SliceStore {
	return &SliceStore{db: db}
}

// DB returns the underlying handle.
func (s *SliceStore) DB() *gorm.DB {
	return s.db
}

// Page returns up to limit rows of the given types with id > afterID, in id order.
func (s *SliceStore) Page(ctx context.Context, vizTypes []string, afterID int64, limit int) ([]types.Slice, error) {
	var rows []types.Slice
	err := s.db.WithContext(ctx).
		Where("viz_type IN ? AND id > ?", vizTypes, afterID).
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read slices after id %d: %w", afterID, err)
	}
	return rows, nil
}

// PageWithQueryContext is Page restricted to rows that carry a stored query context.
func (s *SliceStore) PageWithQueryContext(ctx context.Context, vizTypes []string, afterID int64, limit int) ([]types.Slice, error) {
	var rows []types.Slice
	err := s.db.WithContext(ctx).
		Where("viz_type IN ? AND id > ?", vizTypes, afterID).
		Where("query_context IS NOT NULL AND query_context <> ''").
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read slices after id %d: %w", afterID, err)
	}
	return rows, nil
}

// CountWithQueryContext counts the rows PageWithQueryContext would visit.
func (s *SliceStore) CountWithQueryContext(ctx context.Context, vizTypes []string, afterID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&types.Slice{}).
		Where("viz_type IN ? AND id > ?", vizTypes, afterID).
		Where("query_context IS NOT NULL AND query_context <> ''").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count slices: %w", err)
	}
	return n, nil
}

// Count returns the number of rows of the given types with id > afterID.
func (s *SliceStore) Count(ctx context.Context, vizTypes []string, afterID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&types.Slice{}).
		Where("viz_type IN ? AND id > ?", vizTypes, afterID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count slices: %w", err)
	}
	return n, nil
}

// Get loads one row by id.
func (s *SliceStore) Get(ctx context.Context, id int64) (*types.Slice, error) {
	var row types.Slice
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrRowNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slice %d: %w", id, err)
	}
	return &row, nil
}

// UpdateParams writes back the params and type of row. query_context is
// never touched.
func (s *SliceStore) UpdateParams(ctx context.Context, row *types.Slice) error {
	result := s.db.WithContext(ctx).
		Model(&types.Slice{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"viz_type": row.VizType,
			"params":   row.Params,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update slice %d: %w", row.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrRowNotFound, row.ID)
	}
	return nil
}

// Insert stores new rows, assigning their ids.
func (s *SliceStore) Insert(ctx context.Context, rows ...*types.Slice) error {
	for _, row := range rows {
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			return fmt.Errorf("failed to insert slice %q: %w", row.SliceName, err)
		}
	}
	return nil
}
