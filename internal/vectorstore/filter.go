package vectorstore

import "fmt"

// Filter restricts search, scroll, and delete operations to points whose
// payload matches. Equals conditions are ANDed together; an AnyOf
// condition matches when the field equals one of its values.
type Filter struct {
	Equals map[string]interface{}
	AnyOf  map[string][]interface{}
}

// FilterBuilder provides a fluent interface for building filters.
type FilterBuilder struct {
	filter Filter
}

// NewFilterBuilder creates a new FilterBuilder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filter: Filter{
			Equals: make(map[string]interface{}),
			AnyOf:  make(map[string][]interface{}),
		},
	}
}

// Eq adds an equality condition.
func (b *FilterBuilder) Eq(field string, value interface{}) *FilterBuilder {
	b.filter.Equals[field] = value
	return b
}

// In adds a match-any condition.
func (b *FilterBuilder) In(field string, values ...interface{}) *FilterBuilder {
	b.filter.AnyOf[field] = append(b.filter.AnyOf[field], values...)
	return b
}

// Build returns the filter, or nil when no conditions were added.
func (b *FilterBuilder) Build() *Filter {
	if len(b.filter.Equals) == 0 && len(b.filter.AnyOf) == 0 {
		return nil
	}
	return &b.filter
}

// IsEmpty reports whether the filter has no conditions.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Equals) == 0 && len(f.AnyOf) == 0)
}

// Matches evaluates the filter against a payload map. Used by the embedded
// store; the qdrant backend translates the filter to native conditions
// instead.
func (f *Filter) Matches(payload map[string]interface{}) bool {
	if f.IsEmpty() {
		return true
	}
	for field, want := range f.Equals {
		got, ok := payload[field]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	for field, values := range f.AnyOf {
		got, ok := payload[field]
		if !ok {
			return false
		}
		matched := false
		for _, want := range values {
			if scalarEqual(got, want) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// scalarEqual compares payload scalars, normalizing numeric types so an
// int64 read back from the index matches the int it was written as.
func scalarEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
