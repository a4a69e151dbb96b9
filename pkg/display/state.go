// Package display provides the DisplayState query engine: given a
// collection's schema and its per-row metadata records, it applies an
// ordered set of filters, a priority-ordered multi-key sort, and
// pagination, and manages named saved views. The engine never mutates
// the record set, so concurrent queries against the same records are
// safe.
package display

import "github.com/ajitpratap0/trellis/pkg/errors"

// DefaultPageSize is used when neither the state nor its layout fixes
// a page size.
const DefaultPageSize = 12

// Record is one row's metadata: every non-panel column's value plus the
// resolved panel reference, keyed by variable name.
type Record map[string]interface{}

// SortDirection orders a sort key.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Sort pairs a variable name with a direction. List position encodes
// priority: the first sort is the primary key.
type Sort struct {
	Variable  string        `json:"varname"`
	Direction SortDirection `json:"dir"`
}

// Layout carries panel-grid hints for viewers.
type Layout struct {
	Columns     int    `json:"ncol,omitempty"`
	Rows        int    `json:"nrow,omitempty"`
	Arrangement string `json:"arrange,omitempty"`
}

// State is the mutable-by-copy display configuration: active filters,
// sorts, panel labels, layout hints and the current page.
type State struct {
	Filters  []Filter `json:"filters"`
	Sorts    []Sort   `json:"sorts"`
	Labels   []string `json:"labels"`
	Layout   Layout   `json:"layout"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size,omitempty"`
}

// EffectivePageSize resolves the page size: the explicit size, else the
// layout grid, else DefaultPageSize.
func (s State) EffectivePageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	if s.Layout.Columns > 0 && s.Layout.Rows > 0 {
		return s.Layout.Columns * s.Layout.Rows
	}
	return DefaultPageSize
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Filters = make([]Filter, len(s.Filters))
	copy(out.Filters, s.Filters)
	for i := range out.Filters {
		out.Filters[i] = s.Filters[i].clone()
	}
	out.Sorts = make([]Sort, len(s.Sorts))
	copy(out.Sorts, s.Sorts)
	out.Labels = make([]string, len(s.Labels))
	copy(out.Labels, s.Labels)
	return out
}

// View is an immutable named snapshot of a State. Views never carry a
// page number; loading a view starts at page 1.
type View struct {
	Name  string `json:"name"`
	State State  `json:"state"`
}

// Page is one result page of a query.
type Page struct {
	// Records is the page slice in final sorted order
	Records []Record
	// Number is the clamped page number actually returned
	Number int
	// PageCount is the number of pages in the filtered result
	PageCount int
	// Total is the filtered (pre-pagination) record count
	Total int
}

// errViewNotFound is returned by LoadView for an unknown view name.
func errViewNotFound(name string) error {
	return errors.Newf(errors.ErrorTypeNotFound, "view %q not found", name)
}
