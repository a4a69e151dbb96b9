package display

import (
	"strings"
	"time"
)

// FilterKind tags the filter variant.
type FilterKind string

const (
	// FilterRange keeps values inside an inclusive numeric or temporal
	// interval. A nil bound leaves that side open.
	FilterRange FilterKind = "range"
	// FilterCategory keeps values that are members of a level set. An
	// empty set matches nothing.
	FilterCategory FilterKind = "category"
	// FilterText keeps values containing a case-insensitive substring,
	// or matching a regular expression when Regex is set.
	FilterText FilterKind = "text"
)

// Filter is a single predicate on one variable. Exactly the fields of
// its Kind are populated; the rest stay zero so the wire form is flat.
type Filter struct {
	Kind     FilterKind `json:"kind"`
	Variable string     `json:"varname"`

	Min     *float64   `json:"min,omitempty"`
	Max     *float64   `json:"max,omitempty"`
	MinTime *time.Time `json:"min_time,omitempty"`
	MaxTime *time.Time `json:"max_time,omitempty"`

	Values []string `json:"values,omitempty"`

	Query string `json:"query,omitempty"`
	Regex bool   `json:"regex,omitempty"`
}

// NewRangeFilter builds an inclusive numeric range filter. Pass nil to
// leave a bound open.
func NewRangeFilter(variable string, min, max *float64) Filter {
	return Filter{Kind: FilterRange, Variable: variable, Min: min, Max: max}
}

// NewTimeRangeFilter builds an inclusive temporal range filter.
func NewTimeRangeFilter(variable string, min, max *time.Time) Filter {
	return Filter{Kind: FilterRange, Variable: variable, MinTime: min, MaxTime: max}
}

// NewCategoryFilter builds a level-membership filter.
func NewCategoryFilter(variable string, values ...string) Filter {
	return Filter{Kind: FilterCategory, Variable: variable, Values: values}
}

// NewTextFilter builds a case-insensitive substring filter.
func NewTextFilter(variable, query string) Filter {
	return Filter{Kind: FilterText, Variable: variable, Query: query}
}

func (f Filter) clone() Filter {
	out := f
	if f.Min != nil {
		v := *f.Min
		out.Min = &v
	}
	if f.Max != nil {
		v := *f.Max
		out.Max = &v
	}
	if f.MinTime != nil {
		v := *f.MinTime
		out.MinTime = &v
	}
	if f.MaxTime != nil {
		v := *f.MaxTime
		out.MaxTime = &v
	}
	out.Values = make([]string, len(f.Values))
	copy(out.Values, f.Values)
	return out
}

// matchesText reports whether value contains the query, ignoring case.
// Regex matching is compiled once per Apply by the engine; the compiled
// form is passed in.
func matchesSubstring(value, query string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(query))
}
