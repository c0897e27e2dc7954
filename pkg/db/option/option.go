package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/dotation/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single column comparison. Unknown operators and blank
// fields are ignored.
func ApplyOperator(c Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(c.Field)
		if field == "" {
			return db
		}
		switch c.Operator {
		case EQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", field, c.Operator), c.Value)
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", field), c.Value)
		default:
			return db
		}
	})
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow}
}

// WithSortBy orders by SortBy when it is allowed, falling back to the first
// allowed column. Direction defaults to ascending.
func WithSortBy(s QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if !s.Allow[column] {
			column = ""
			for allowed := range s.Allow {
				if column == "" || allowed < column {
					column = allowed
				}
			}
		}
		if column == "" {
			return db
		}
		direction := "asc"
		if strings.EqualFold(s.OrderBy, "desc") {
			direction = "desc"
		}
		return db.Order(column + " " + direction)
	})
}

// WithOrder appends a fixed order clause, typically a tie-breaker after WithSortBy.
func WithOrder(column string, desc bool) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if desc {
			return db.Order(column + " desc")
		}
		return db.Order(column + " asc")
	})
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Limit(p.Limit()).Offset(p.Offset())
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}
