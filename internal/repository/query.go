package repository

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Filter narrows a query. Zero-value filters match every row.
type Filter interface {
	Apply(tx *gorm.DB) *gorm.DB
}

// Update carries a partial update; only the returned columns are written.
type Update interface {
	Fields() map[string]any
}

// OrderBy sorts on one whitelisted column.
type OrderBy struct {
	Column string
	Desc   bool
}

func Asc(column string) OrderBy  { return OrderBy{Column: column} }
func Desc(column string) OrderBy { return OrderBy{Column: column, Desc: true} }

// FindArgs is the argument of FindMany / FindFirst.
type FindArgs[F Filter] struct {
	Where   F
	OrderBy []OrderBy
	Skip    int
	Take    int
	// Preload names associations to load, e.g. "Driver".
	Preload []string
}

// AggregateArgs selects numeric columns per aggregate function.
type AggregateArgs struct {
	Sum []string
	Avg []string
	Min []string
	Max []string
}

// AggregateResult holds the values requested by AggregateArgs. Aggregates over
// an empty set are reported as invalid NullDecimals.
type AggregateResult struct {
	Count int64
	Sum   map[string]decimal.NullDecimal
	Avg   map[string]decimal.NullDecimal
	Min   map[string]decimal.NullDecimal
	Max   map[string]decimal.NullDecimal
}

// GroupByArgs groups on By and computes per-group aggregates.
type GroupByArgs struct {
	By []string
	AggregateArgs
}

// GroupRow is one group. Keys values are nil for NULL group keys.
type GroupRow struct {
	Keys  map[string]*string
	Count int64
	Sum   map[string]decimal.NullDecimal
	Avg   map[string]decimal.NullDecimal
	Min   map[string]decimal.NullDecimal
	Max   map[string]decimal.NullDecimal
}

// Page is a page request; Number starts at 1.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page into sane bounds.
func (p Page) Normalize() Page {
	if p.Number <= 0 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Size
}

// columnSet whitelists columns that may appear in ORDER BY / GROUP BY and
// aggregate expressions.
type columnSet struct {
	sortable map[string]struct{}
	numeric  map[string]struct{}
}

func newColumnSet(sortable []string, numeric []string) columnSet {
	cs := columnSet{
		sortable: make(map[string]struct{}, len(sortable)),
		numeric:  make(map[string]struct{}, len(numeric)),
	}
	for _, c := range sortable {
		cs.sortable[c] = struct{}{}
	}
	for _, c := range numeric {
		cs.numeric[c] = struct{}{}
	}
	return cs
}

func (cs columnSet) checkSortable(cols ...string) error {
	for _, c := range cols {
		if _, ok := cs.sortable[c]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidColumn, c)
		}
	}
	return nil
}

func (cs columnSet) checkNumeric(cols ...string) error {
	for _, c := range cols {
		if _, ok := cs.numeric[c]; !ok {
			return fmt.Errorf("%w: %q is not numeric", ErrInvalidColumn, c)
		}
	}
	return nil
}

func (a AggregateArgs) check(cs columnSet) error {
	for _, cols := range [][]string{a.Sum, a.Avg, a.Min, a.Max} {
		if err := cs.checkNumeric(cols...); err != nil {
			return err
		}
	}
	return nil
}

type aggTarget struct {
	fn    string
	col   string
	alias string
}

func (a AggregateArgs) targets() []aggTarget {
	var out []aggTarget
	add := func(fn string, cols []string) {
		for _, c := range cols {
			out = append(out, aggTarget{fn: fn, col: c, alias: "_" + strings.ToLower(fn) + "_" + c})
		}
	}
	add("SUM", a.Sum)
	add("AVG", a.Avg)
	add("MIN", a.Min)
	add("MAX", a.Max)
	return out
}

// likePattern builds a case-insensitive contains pattern for LOWER(col) LIKE ?.
func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}
