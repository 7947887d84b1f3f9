package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	includePrefix = "include_"
	descMarker    = "_"
)

// FieldKind column type used to convert filter values
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindDecimal
	KindTime
)

// Field a queryable column
type Field struct {
	Column string
	Kind   FieldKind
}

// Schema describes how generic query parameters map onto one entity.
// Each entity declares its own schema; nothing is discovered at runtime.
type Schema struct {
	Name      string
	Table     string
	Fields    map[string]Field
	Relations map[string]string // include key -> gorm association
}

// Entity is implemented by every stored type
type Entity interface {
	GetID() uint
	EntitySchema() *Schema
}

// Param one query string pair
type Param struct {
	Key   string
	Value string
}

// Params ordered query parameters. Order matters: sort directives apply
// in the order they were given.
type Params []Param

// ParseParams parses a raw query string keeping first-seen key order.
// A repeated key keeps its first position and its last value.
func ParseParams(rawQuery string) Params {
	var params Params
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		params = params.Set(k, v)
	}
	return params
}

// Get returns the value for key
func (p Params) Get(key string) (string, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing key or appends a new one
func (p Params) Set(key, value string) Params {
	for i := range p {
		if p[i].Key == key {
			out := make(Params, len(p))
			copy(out, p)
			out[i].Value = value
			return out
		}
	}
	out := make(Params, len(p), len(p)+1)
	copy(out, p)
	return append(out, Param{Key: key, Value: value})
}

// Encode renders the params as k=v&k2=v2 preserving order
func (p Params) Encode() string {
	var sb strings.Builder
	for i, param := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(param.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(param.Value))
	}
	return sb.String()
}

// FilterError a filter value that does not fit its column type
type FilterError struct {
	Field string
	Value string
	Err   error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Field, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// Plan the translated form of a parameter set
type Plan struct {
	Preloads []string
	Filters  []clause.Expression
	Orders   []clause.OrderByColumn
	Limit    int // -1 means unbounded
	Offset   int
}

// Plan translates params into query directives for this schema.
// Unknown keys and relations are ignored.
func (s *Schema) Plan(params Params) (*Plan, error) {
	plan := &Plan{Limit: -1}

	for _, param := range params {
		key, value := param.Key, param.Value

		switch {
		case key == "limit":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				plan.Limit = n
			}
			continue
		case key == "offset":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				plan.Offset = n
			}
			continue
		case strings.HasPrefix(key, includePrefix):
			if rel, ok := s.Relations[strings.TrimPrefix(key, includePrefix)]; ok && truthy(value) {
				plan.Preloads = append(plan.Preloads, rel)
			}
			continue
		}

		desc := strings.HasPrefix(key, descMarker)
		name := strings.TrimPrefix(key, descMarker)
		field, ok := s.Fields[name]
		if !ok {
			continue
		}

		if value == "" {
			plan.Orders = append(plan.Orders, clause.OrderByColumn{
				Column: clause.Column{Name: field.Column},
				Desc:   desc,
			})
			continue
		}

		typed, err := field.convert(value)
		if err != nil {
			return nil, &FilterError{Field: name, Value: value, Err: err}
		}
		plan.Filters = append(plan.Filters, clause.Eq{
			Column: clause.Column{Name: field.Column},
			Value:  typed,
		})
	}

	plan.Orders = append(plan.Orders, clause.OrderByColumn{
		Column: clause.Column{Name: "id"},
	})
	return plan, nil
}

// Scope applies everything except limit and offset
func (p *Plan) Scope(db *gorm.DB) *gorm.DB {
	for _, rel := range p.Preloads {
		db = db.Preload(rel)
	}
	if len(p.Filters) > 0 {
		db = db.Where(clause.And(p.Filters...))
	}
	for _, order := range p.Orders {
		db = db.Order(order)
	}
	return db
}

func (f Field) convert(value string) (any, error) {
	switch f.Kind {
	case KindInt:
		return strconv.ParseInt(value, 10, 64)
	case KindDecimal:
		return decimal.NewFromString(strings.Replace(value, ",", ".", 1))
	case KindTime:
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return t, nil
		}
		return time.ParseInLocation(time.DateOnly, value, MSK)
	default:
		return value, nil
	}
}

// truthy accepts 1/true/t/yes and any non-zero integer
func truthy(value string) bool {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n != 0
	}
	return strings.EqualFold(value, "yes") || strings.EqualFold(value, "on")
}
