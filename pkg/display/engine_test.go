package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/meta"
)

func testSchema() []meta.WireVariable {
	return []meta.WireVariable{
		{Type: "factor", Name: "group", Filterable: true, Sortable: true, Levels: []string{"A", "B"}},
		{Type: "number", Name: "value", Filterable: true, Sortable: true},
		{Type: "number", Name: "score", Filterable: true, Sortable: true},
		{Type: "text", Name: "note", Filterable: true, Sortable: false},
		{Type: "date", Name: "day", Filterable: true, Sortable: true, Format: "2006-01-02"},
	}
}

func testRecords() []Record {
	// Rows in insertion order: (A,3), (B,9), (A,7), (B,1), (A,5).
	return []Record{
		{"group": "A", "value": 3.0, "score": 1.0, "note": "first row", "day": "2024-01-01"},
		{"group": "B", "value": 9.0, "score": 2.0, "note": "second ROW", "day": "2024-01-02"},
		{"group": "A", "value": 7.0, "score": 1.0, "note": "third", "day": "2024-01-03"},
		{"group": "B", "value": 1.0, "score": 2.0, "note": "fourth", "day": "2024-01-04"},
		{"group": "A", "value": 5.0, "score": 1.0, "note": "fifth row", "day": "2024-01-05"},
	}
}

func values(t *testing.T, page *Page, varname string) []interface{} {
	t.Helper()
	out := make([]interface{}, 0, len(page.Records))
	for _, r := range page.Records {
		out = append(out, r[varname])
	}
	return out
}

func TestApplyFilterThenSort(t *testing.T) {
	engine := NewEngine(testSchema())

	page, err := engine.Apply(State{
		Filters: []Filter{NewCategoryFilter("group", "A")},
		Sorts:   []Sort{{Variable: "value", Direction: Descending}},
		Page:    1,
	}, testRecords())
	require.NoError(t, err)

	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []interface{}{7.0, 5.0, 3.0}, values(t, page, "value"))
}

func TestApplyOrderIsFilterSortPaginate(t *testing.T) {
	engine := NewEngine(testSchema())

	page, err := engine.Apply(State{
		Filters:  []Filter{NewCategoryFilter("group", "A")},
		Sorts:    []Sort{{Variable: "value", Direction: Ascending}},
		Page:     2,
		PageSize: 2,
	}, testRecords())
	require.NoError(t, err)

	// Pagination applies to the filtered, sorted result: [3,5,7] paged
	// by 2 puts 7 alone on page 2.
	assert.Equal(t, 2, page.Number)
	assert.Equal(t, 2, page.PageCount)
	assert.Equal(t, []interface{}{7.0}, values(t, page, "value"))
}

func TestMultiKeyStableSort(t *testing.T) {
	engine := NewEngine(testSchema())

	page, err := engine.Apply(State{
		Sorts: []Sort{
			{Variable: "score", Direction: Ascending},
			{Variable: "value", Direction: Descending},
		},
		Page: 1,
	}, testRecords())
	require.NoError(t, err)

	// Primary key first, secondary breaks ties.
	assert.Equal(t, []interface{}{7.0, 5.0, 3.0, 9.0, 1.0}, values(t, page, "value"))
}

func TestStableSortPreservesInsertionOrderOnTies(t *testing.T) {
	engine := NewEngine(testSchema())

	page, err := engine.Apply(State{
		Sorts: []Sort{{Variable: "score", Direction: Ascending}},
		Page:  1,
	}, testRecords())
	require.NoError(t, err)

	// Rows with equal score keep their insertion order.
	assert.Equal(t, []interface{}{3.0, 7.0, 5.0, 9.0, 1.0}, values(t, page, "value"))
}

func TestRangeFilterInclusiveBounds(t *testing.T) {
	engine := NewEngine(testSchema())
	lo, hi := 3.0, 7.0

	page, err := engine.Apply(State{
		Filters: []Filter{NewRangeFilter("value", &lo, &hi)},
		Sorts:   []Sort{{Variable: "value", Direction: Ascending}},
		Page:    1,
	}, testRecords())
	require.NoError(t, err)

	// Both endpoints are included.
	assert.Equal(t, []interface{}{3.0, 5.0, 7.0}, values(t, page, "value"))
}

func TestCategoryFilterEmptySetMatchesNothing(t *testing.T) {
	engine := NewEngine(testSchema())

	page, err := engine.Apply(State{
		Filters: []Filter{NewCategoryFilter("group")},
		Page:    1,
	}, testRecords())
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Records)
	assert.Equal(t, 1, page.Number)
}

func TestTextFilterCaseInsensitiveSubstring(t *testing.T) {
	engine := NewEngine(testSchema())

	page, err := engine.Apply(State{
		Filters: []Filter{NewTextFilter("note", "row")},
		Page:    1,
	}, testRecords())
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestTimeRangeFilter(t *testing.T) {
	engine := NewEngine(testSchema())
	min := mustTime(t, "2024-01-02")
	max := mustTime(t, "2024-01-04")

	page, err := engine.Apply(State{
		Filters: []Filter{NewTimeRangeFilter("day", &min, &max)},
		Page:    1,
	}, testRecords())
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestConjunctionOfFilters(t *testing.T) {
	engine := NewEngine(testSchema())
	lo := 5.0

	page, err := engine.Apply(State{
		Filters: []Filter{
			NewCategoryFilter("group", "A"),
			NewRangeFilter("value", &lo, nil),
		},
		Page: 1,
	}, testRecords())
	require.NoError(t, err)

	// All filters must match.
	assert.Equal(t, 2, page.Total)
}

func TestNullNeverMatchesAFilter(t *testing.T) {
	engine := NewEngine(testSchema())
	records := append(testRecords(), Record{"group": nil, "value": nil, "score": nil, "note": nil, "day": nil})

	page, err := engine.Apply(State{
		Filters: []Filter{NewCategoryFilter("group", "A", "B")},
		Page:    1,
	}, records)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
}

func TestPaginationClampsOutOfRangePage(t *testing.T) {
	engine := NewEngine(testSchema())

	page, err := engine.Apply(State{Page: 999, PageSize: 2}, testRecords())
	require.NoError(t, err)
	assert.Equal(t, 3, page.Number, "page 999 clamps to the last page")
	assert.Len(t, page.Records, 1)

	page, err = engine.Apply(State{Page: -5, PageSize: 2}, testRecords())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
}

func TestUnknownVariableIsQueryError(t *testing.T) {
	engine := NewEngine(testSchema())

	_, err := engine.Apply(State{
		Filters: []Filter{NewTextFilter("missing", "x")},
	}, testRecords())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))

	_, err = engine.Apply(State{
		Sorts: []Sort{{Variable: "missing", Direction: Ascending}},
	}, testRecords())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestFilterKindCompatibility(t *testing.T) {
	engine := NewEngine(testSchema())

	// A range filter cannot target a factor.
	lo := 1.0
	_, err := engine.Apply(State{
		Filters: []Filter{NewRangeFilter("group", &lo, nil)},
	}, testRecords())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))

	// Text columns are not sortable in this schema.
	_, err = engine.Apply(State{
		Sorts: []Sort{{Variable: "note", Direction: Ascending}},
	}, testRecords())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestFactorSortUsesLevelOrder(t *testing.T) {
	schema := []meta.WireVariable{
		{Type: "factor", Name: "size", Filterable: true, Sortable: true, Levels: []string{"small", "medium", "large"}},
	}
	engine := NewEngine(schema)

	records := []Record{
		{"size": "large"},
		{"size": "small"},
		{"size": "medium"},
	}
	page, err := engine.Apply(State{
		Sorts: []Sort{{Variable: "size", Direction: Ascending}},
		Page:  1,
	}, records)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"small", "medium", "large"}, values(t, page, "size"))
}

func TestSaveViewDeepCopy(t *testing.T) {
	engine := NewEngine(testSchema())

	state := State{
		Filters: []Filter{NewCategoryFilter("group", "A")},
		Sorts:   []Sort{{Variable: "value", Direction: Descending}},
		Page:    4,
	}
	view, err := engine.SaveView("favorites", state)
	require.NoError(t, err)
	assert.Equal(t, 1, view.State.Page, "views never record a page")

	// Mutating the live state must not leak into the saved view.
	state.Filters[0].Values[0] = "B"
	state.Sorts[0].Direction = Ascending

	loaded, err := engine.LoadView("favorites")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, loaded.Filters[0].Values)
	assert.Equal(t, Descending, loaded.Sorts[0].Direction)
	assert.Equal(t, 1, loaded.Page)
}

func TestLoadViewEquivalentQuery(t *testing.T) {
	engine := NewEngine(testSchema())
	records := testRecords()

	state := State{
		Filters: []Filter{NewCategoryFilter("group", "A")},
		Sorts:   []Sort{{Variable: "value", Direction: Descending}},
		Page:    1,
	}
	direct, err := engine.Apply(state, records)
	require.NoError(t, err)

	_, err = engine.SaveView("saved", state)
	require.NoError(t, err)
	restored, err := engine.LoadView("saved")
	require.NoError(t, err)

	viaView, err := engine.Apply(restored, records)
	require.NoError(t, err)
	assert.Equal(t, direct.Records, viaView.Records)
}

func TestLoadViewNotFound(t *testing.T) {
	engine := NewEngine(testSchema())

	_, err := engine.LoadView("nope")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestSaveViewValidatesState(t *testing.T) {
	engine := NewEngine(testSchema())

	_, err := engine.SaveView("bad", State{
		Filters: []Filter{NewTextFilter("missing", "x")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestViewsSortedByName(t *testing.T) {
	engine := NewEngine(testSchema())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := engine.SaveView(name, State{})
		require.NoError(t, err)
	}

	views := engine.Views()
	require.Len(t, views, 3)
	assert.Equal(t, "alpha", views[0].Name)
	assert.Equal(t, "mid", views[1].Name)
	assert.Equal(t, "zeta", views[2].Name)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	engine := NewEngine(testSchema())
	records := testRecords()

	_, err := engine.Apply(State{
		Sorts: []Sort{{Variable: "value", Direction: Descending}},
		Page:  1,
	}, records)
	require.NoError(t, err)

	assert.Equal(t, 3.0, records[0]["value"], "input order is preserved")
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return parsed
}
