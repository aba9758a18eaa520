package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCondition reads a single command-line clause:
// "key=value" (exact match), "key>=n", "key>n", "key<=n", "key<n" (numeric range).
func ParseCondition(clause string) (Condition, error) {
	for _, op := range []string{">=", "<=", ">", "<", "="} {
		key, raw, ok := strings.Cut(clause, op)
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)
		if op == "=" {
			return NewMatch(key, raw)
		}

		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Condition{}, fmt.Errorf("clause %q: %q is not a number", clause, raw)
		}
		var r Range
		switch op {
		case ">=":
			r, err = NewRangeFilter(nil, &n, nil, nil)
		case ">":
			r, err = NewRangeFilter(&n, nil, nil, nil)
		case "<=":
			r, err = NewRangeFilter(nil, nil, nil, &n)
		case "<":
			r, err = NewRangeFilter(nil, nil, &n, nil)
		}
		if err != nil {
			return Condition{}, err
		}
		return NewRange(key, r)
	}
	return Condition{}, fmt.Errorf("clause %q: expected key=value or a numeric comparison", clause)
}

// ParseAll combines clauses into an expression where every clause must hold.
// Clauses on the same key with range operators are merged into one range.
func ParseAll(clauses []string) (Expression, error) {
	must := make([]Condition, 0, len(clauses))
	ranges := make(map[string]int)

	for _, c := range clauses {
		cond, err := ParseCondition(c)
		if err != nil {
			return Expression{}, err
		}
		if cond.IsRange() {
			if i, ok := ranges[cond.Key()]; ok {
				merged, err := mergeRanges(*must[i].Range(), *cond.Range())
				if err != nil {
					return Expression{}, fmt.Errorf("key %q: %w", cond.Key(), err)
				}
				must[i] = Condition{key: cond.Key(), rangeExpr: &merged}
				continue
			}
			ranges[cond.Key()] = len(must)
		}
		must = append(must, cond)
	}
	return NewExpression(must, nil, nil)
}

func mergeRanges(a, b Range) (Range, error) {
	pick := func(x, y *float64) *float64 {
		if x != nil {
			return x
		}
		return y
	}
	return NewRangeFilter(pick(a.gt, b.gt), pick(a.gte, b.gte), pick(a.lt, b.lt), pick(a.lte, b.lte))
}
