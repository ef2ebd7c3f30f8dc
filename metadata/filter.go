package metadata

import "strings"

// Operator identifies a filter comparison.
type Operator uint8

const (
	// OpEqual matches values that compare equal.
	OpEqual Operator = iota
	// OpNotEqual matches values that do not compare equal.
	OpNotEqual
	// OpGreaterThan matches numeric values strictly greater than the operand.
	OpGreaterThan
	// OpGreaterEqual matches numeric values greater than or equal to the operand.
	OpGreaterEqual
	// OpLessThan matches numeric values strictly less than the operand.
	OpLessThan
	// OpLessEqual matches numeric values less than or equal to the operand.
	OpLessEqual
	// OpIn matches values contained in the operand array.
	OpIn
	// OpContains matches string values containing the operand substring.
	OpContains
)

// Filter is a single metadata condition.
type Filter struct {
	Key      string
	Operator Operator
	Value    Value
}

// FilterSet is a conjunction of filters (AND logic).
type FilterSet struct {
	Filters []Filter
}

// Filters builds a FilterSet from individual filters.
func Filters(filters ...Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// Eq creates an equality filter.
func Eq(key string, value Value) Filter {
	return Filter{Key: key, Operator: OpEqual, Value: value}
}

// Ne creates a not-equal filter.
func Ne(key string, value Value) Filter {
	return Filter{Key: key, Operator: OpNotEqual, Value: value}
}

// Gt creates a greater-than filter.
func Gt(key string, value Value) Filter {
	return Filter{Key: key, Operator: OpGreaterThan, Value: value}
}

// Gte creates a greater-or-equal filter.
func Gte(key string, value Value) Filter {
	return Filter{Key: key, Operator: OpGreaterEqual, Value: value}
}

// Lt creates a less-than filter.
func Lt(key string, value Value) Filter {
	return Filter{Key: key, Operator: OpLessThan, Value: value}
}

// Lte creates a less-or-equal filter.
func Lte(key string, value Value) Filter {
	return Filter{Key: key, Operator: OpLessEqual, Value: value}
}

// In creates a membership filter. values are the allowed values.
func In(key string, values ...Value) Filter {
	return Filter{Key: key, Operator: OpIn, Value: Array(values...)}
}

// Contains creates a containment filter. For string document values it
// matches substrings, for array values it matches membership.
func Contains(key string, value Value) Filter {
	return Filter{Key: key, Operator: OpContains, Value: value}
}

// EqMap builds a FilterSet of equality filters from a JSON-like map.
// This mirrors the common "filters: {key: value}" call shape.
func EqMap(m map[string]any) (*FilterSet, error) {
	if len(m) == 0 {
		return nil, nil
	}
	fs := &FilterSet{Filters: make([]Filter, 0, len(m))}
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, err
		}
		fs.Filters = append(fs.Filters, Eq(k, val))
	}
	return fs, nil
}

// Matches checks if the provided metadata matches this filter.
func (f Filter) Matches(doc Document) bool {
	value, exists := doc[f.Key]
	if !exists {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	case OpNotEqual:
		return !compareEqual(value, f.Value)
	case OpGreaterThan:
		return compareGreater(value, f.Value)
	case OpGreaterEqual:
		return compareGreater(value, f.Value) || compareEqual(value, f.Value)
	case OpLessThan:
		return compareLess(value, f.Value)
	case OpLessEqual:
		return compareLess(value, f.Value) || compareEqual(value, f.Value)
	case OpIn:
		return compareIn(value, f.Value)
	case OpContains:
		return compareContains(value, f.Value)
	default:
		return false
	}
}

// Matches checks if the provided metadata matches all filters in the set.
// A nil or empty set matches everything.
func (fs *FilterSet) Matches(doc Document) bool {
	if fs == nil {
		return true
	}
	for i := range fs.Filters {
		if !fs.Filters[i].Matches(doc) {
			return false
		}
	}
	return true
}

// EqualityFilters returns the subset of filters using OpEqual, and whether
// any non-equality filters remain. Used by inverted-index acceleration.
func (fs *FilterSet) EqualityFilters() (eq []Filter, rest []Filter) {
	if fs == nil {
		return nil, nil
	}
	for _, f := range fs.Filters {
		if f.Operator == OpEqual {
			eq = append(eq, f)
		} else {
			rest = append(rest, f)
		}
	}
	return eq, rest
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		// Prefer exact int compare when possible.
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.S == b.S
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) > asFloat64(b)
}

func compareLess(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) < asFloat64(b)
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareContains(a, b Value) bool {
	switch a.Kind {
	case KindString:
		return b.Kind == KindString && strings.Contains(a.S, b.S)
	case KindArray:
		for _, item := range a.A {
			if compareEqual(item, b) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
