// Package filter models the metadata restrictions applied to a similarity search.
package filter

import "fmt"

// MaxConditionsPerGroup bounds each boolean group.
const MaxConditionsPerGroup = 32

// Expression combines conditions: all of must, at least one of should, none of mustNot.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates group sizes and creates an Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	for name, group := range map[string][]Condition{"must": must, "should": should, "must_not": mustNot} {
		if len(group) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("too many %s conditions (max %d)", name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the conditions that all have to hold.
func (e Expression) Must() []Condition { return e.must }

// Should returns the conditions of which at least one has to hold.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the excluded conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression restricts nothing.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// Condition is either an exact match on a field or a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch creates an exact match condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

func (c Condition) Key() string   { return c.key }
func (c Condition) Match() string { return c.match }
func (c Condition) Range() *Range { return c.rangeExpr }
func (c Condition) IsMatch() bool { return c.match != "" }
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// Range is a numeric interval. Either bound may be open, closed or absent.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter needs at least one bound; gt/gte and lt/lte exclude each other.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

func (r Range) GT() *float64  { return r.gt }
func (r Range) GTE() *float64 { return r.gte }
func (r Range) LT() *float64  { return r.lt }
func (r Range) LTE() *float64 { return r.lte }
