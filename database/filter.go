// database/filter.go - Query filters
package database

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Filter is a column/operator/value triple applied as a WHERE clause.
type Filter struct {
	Column string
	Op     string
	Value  any
}

func Eq(column string, value any) Filter  { return Filter{Column: column, Op: "=", Value: value} }
func Ne(column string, value any) Filter  { return Filter{Column: column, Op: "<>", Value: value} }
func Lt(column string, value any) Filter  { return Filter{Column: column, Op: "<", Value: value} }
func Lte(column string, value any) Filter { return Filter{Column: column, Op: "<=", Value: value} }
func Gt(column string, value any) Filter  { return Filter{Column: column, Op: ">", Value: value} }
func Gte(column string, value any) Filter { return Filter{Column: column, Op: ">=", Value: value} }
func In(column string, values any) Filter { return Filter{Column: column, Op: "IN", Value: values} }

func (f Filter) apply(tx *gorm.DB) (*gorm.DB, error) {
	if !columnPattern.MatchString(f.Column) {
		return nil, fmt.Errorf("invalid filter column %q", f.Column)
	}

	switch f.Op {
	case "=", "<>", "<", "<=", ">", ">=":
		return tx.Where(f.Column+" "+f.Op+" ?", f.Value), nil
	case "IN":
		return tx.Where(f.Column+" IN ?", f.Value), nil
	default:
		return nil, fmt.Errorf("invalid filter operator %q", f.Op)
	}
}

func applyFilters(tx *gorm.DB, filters []Filter) (*gorm.DB, error) {
	for _, f := range filters {
		var err error
		if tx, err = f.apply(tx); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// Query selects records by filters with optional ordering and limit.
type Query struct {
	Filters []Filter
	OrderBy string // e.g. "created_at DESC"
	Limit   int
}

var orderPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*( (ASC|DESC))?(, ?[a-z][a-z0-9_]*( (ASC|DESC))?)*$`)
