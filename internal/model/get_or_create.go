package model

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetOrCreate finds the single row matching lookup. A found row gets the
// defaults that differ from its stored values; a missing row is created
// from lookup merged with defaults. The bool reports whether a row was created.
//
// There is no locking: two concurrent callers may both try to insert, and
// the loser's unique constraint failure is answered by re-reading the winner.
func (s *Store[T]) GetOrCreate(ctx context.Context, lookup, defaults Changes) (*T, bool, error) {
	item, err := s.findOne(ctx, lookup)
	if err != nil {
		return nil, false, err
	}
	if item != nil {
		item, err = s.applyDefaults(ctx, item, defaults)
		return item, false, err
	}

	item = new(T)
	if err := s.assign(ctx, item, lookup); err != nil {
		return nil, false, err
	}
	if err := s.assign(ctx, item, defaults); err != nil {
		return nil, false, err
	}

	created, err := s.Create(ctx, item)
	if err == nil {
		return created, true, nil
	}
	if !IsIntegrity(err) {
		return nil, false, err
	}

	winner, lookupErr := s.findOne(ctx, lookup)
	if lookupErr != nil || winner == nil {
		return nil, false, err
	}
	winner, err = s.applyDefaults(ctx, winner, defaults)
	return winner, false, err
}

func (s *Store[T]) findOne(ctx context.Context, lookup Changes) (*T, error) {
	where := make(map[string]any, len(lookup))
	for key, value := range lookup {
		field, ok := s.schema.Fields[key]
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", s.schema.Name, key)
		}
		where[field.Column] = value
	}

	item := new(T)
	err := s.db.WithContext(ctx).Where(where).Order("id").Take(item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", s.schema.Name, err)
	}
	return item, nil
}

// applyDefaults updates only the default fields whose stored value differs
func (s *Store[T]) applyDefaults(ctx context.Context, item *T, defaults Changes) (*T, error) {
	if len(defaults) == 0 {
		return item, nil
	}

	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(item); err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(item).Elem()

	diff := Changes{}
	for key, want := range defaults {
		field, ok := s.schema.Fields[key]
		if !ok {
			continue
		}
		sf := stmt.Schema.LookUpField(field.Column)
		if sf == nil {
			continue
		}
		current, _ := sf.ValueOf(ctx, rv)
		if !sameValue(current, want) {
			diff[key] = want
		}
	}
	if len(diff) == 0 {
		return item, nil
	}
	return s.Update(ctx, item, diff)
}

func (s *Store[T]) assign(ctx context.Context, item *T, values Changes) error {
	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(item); err != nil {
		return err
	}
	rv := reflect.ValueOf(item).Elem()

	for key, value := range values {
		field, ok := s.schema.Fields[key]
		if !ok {
			return fmt.Errorf("%s has no field %q", s.schema.Name, key)
		}
		sf := stmt.Schema.LookUpField(field.Column)
		if sf == nil {
			return fmt.Errorf("%s has no column %q", s.schema.Name, field.Column)
		}
		if err := sf.Set(ctx, rv, value); err != nil {
			return fmt.Errorf("set %s.%s: %w", s.schema.Name, key, err)
		}
	}
	return nil
}

func sameValue(a, b any) bool {
	if da, ok := a.(decimal.Decimal); ok {
		if db, ok := b.(decimal.Decimal); ok {
			return da.Equal(db)
		}
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ia, ok := asInt(va); ok {
		if ib, ok := asInt(vb); ok {
			return ia == ib
		}
	}
	return reflect.DeepEqual(a, b)
}

func asInt(v reflect.Value) (int64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), true
	}
	return 0, false
}
