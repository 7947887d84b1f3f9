package model

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultBatchSize rows fetched per round trip while streaming
const DefaultBatchSize = 100

// Changes column values for a partial update. Nil values are skipped.
type Changes map[string]any

// Store generic CRUD over one entity type
type Store[T Entity] struct {
	db        *gorm.DB
	schema    *Schema
	batchSize int
}

// NewStore binds a store to db
func NewStore[T Entity](db *gorm.DB) *Store[T] {
	var zero T
	return &Store[T]{
		db:        db,
		schema:    zero.EntitySchema(),
		batchSize: DefaultBatchSize,
	}
}

// WithBatchSize overrides the streaming page size
func (s *Store[T]) WithBatchSize(n int) *Store[T] {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Schema returns the entity schema
func (s *Store[T]) Schema() *Schema {
	return s.schema
}

// ReadAll streams entities matching params. Rows are fetched page by page
// while the caller ranges over the sequence; ranging again re-runs the query.
func (s *Store[T]) ReadAll(ctx context.Context, params Params) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		plan, err := s.schema.Plan(params)
		if err != nil {
			yield(nil, err)
			return
		}

		offset, remaining := plan.Offset, plan.Limit
		for remaining != 0 {
			size := s.batchSize
			if remaining > 0 && remaining < size {
				size = remaining
			}

			var batch []*T
			q := plan.Scope(s.db.WithContext(ctx)).Limit(size)
			if offset > 0 {
				q = q.Offset(offset)
			}
			if err := q.Find(&batch).Error; err != nil {
				yield(nil, fmt.Errorf("read %s: %w", s.schema.Name, err))
				return
			}

			for _, item := range batch {
				if !yield(item, nil) {
					return
				}
			}
			if len(batch) < size {
				return
			}

			offset += len(batch)
			if remaining > 0 {
				remaining -= len(batch)
			}
		}
	}
}

// Collect drains a sequence into a slice
func Collect[T any](seq iter.Seq2[*T, error]) ([]*T, error) {
	items := make([]*T, 0)
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ReadByID returns the entity or nil when no row has that id.
// Only include_* params are meaningful here.
func (s *Store[T]) ReadByID(ctx context.Context, id uint, params Params) (*T, error) {
	plan, err := s.schema.Plan(params)
	if err != nil {
		return nil, err
	}

	item := new(T)
	err = plan.Scope(s.db.WithContext(ctx)).
		Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).
		Take(item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s %d: %w", s.schema.Name, id, err)
	}
	return item, nil
}

// Create inserts item and returns it re-read from the database
func (s *Store[T]) Create(ctx context.Context, item *T) (*T, error) {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error; err != nil {
		return nil, newWriteError(s.schema.Name, err)
	}

	created, err := s.ReadByID(ctx, (*item).GetID(), nil)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, &WriteError{Entity: s.schema.Name, Err: errors.New("row missing after insert")}
	}
	return created, nil
}

// CreateMany inserts items with a single statement
func (s *Store[T]) CreateMany(ctx context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(items).Error; err != nil {
		return newWriteError(s.schema.Name, err)
	}
	return nil
}

// Update applies the non-nil changes for known fields. An empty change set
// is not written at all, so the entity keeps every value including timestamps.
func (s *Store[T]) Update(ctx context.Context, item *T, changes Changes) (*T, error) {
	columns := make(map[string]any, len(changes))
	for key, value := range changes {
		field, ok := s.schema.Fields[key]
		if !ok || field.Column == "id" || isNil(value) {
			continue
		}
		columns[field.Column] = value
	}
	if len(columns) == 0 {
		return item, nil
	}

	if err := s.db.WithContext(ctx).Model(item).Updates(columns).Error; err != nil {
		return nil, newWriteError(s.schema.Name, err)
	}

	updated, err := s.ReadByID(ctx, (*item).GetID(), nil)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &WriteError{Entity: s.schema.Name, Err: errors.New("row missing after update")}
	}
	return updated, nil
}

// Delete removes item; owned rows go with it through ON DELETE CASCADE
func (s *Store[T]) Delete(ctx context.Context, item *T) error {
	if err := s.db.WithContext(ctx).Delete(item).Error; err != nil {
		return newWriteError(s.schema.Name, err)
	}
	return nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
