package display

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/logger"
	"github.com/ajitpratap0/trellis/pkg/meta"
)

// Engine answers display queries over one collection's metadata
// records. It is built from the collection's wire schema so that every
// filter and sort can be validated and typed against the variable it
// names. Saved views live in memory behind a mutex; Apply itself is
// read-only and safe for concurrent use.
type Engine struct {
	schema map[string]meta.WireVariable

	mu    sync.RWMutex
	views map[string]View

	logger *zap.Logger
}

// NewEngine builds an engine over the given schema.
func NewEngine(schema []meta.WireVariable) *Engine {
	byName := make(map[string]meta.WireVariable, len(schema))
	for _, v := range schema {
		byName[v.Name] = v
	}
	return &Engine{
		schema: byName,
		views:  make(map[string]View),
		logger: logger.Get().Named("display"),
	}
}

// Apply runs the full query pipeline in fixed order: filter, then
// sort, then paginate. The input slice is never mutated. The returned
// page number is the requested page clamped into the valid range for
// the filtered result; an empty result yields page 1 with no records.
func (e *Engine) Apply(state State, records []Record) (*Page, error) {
	if err := e.Validate(state); err != nil {
		return nil, err
	}

	kept, err := e.filter(state.Filters, records)
	if err != nil {
		return nil, err
	}
	e.sortRecords(state.Sorts, kept)

	size := state.EffectivePageSize()
	total := len(kept)
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	page := state.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	lo := (page - 1) * size
	hi := lo + size
	if lo > total {
		lo = total
	}
	if hi > total {
		hi = total
	}

	e.logger.Debug("query applied",
		zap.Int("filtered", total),
		zap.Int("page", page),
		zap.Int("pages", pages))

	return &Page{
		Records:   kept[lo:hi],
		Number:    page,
		PageCount: pages,
		Total:     total,
	}, nil
}

// Validate checks every filter and sort in the state against the
// schema: the variable must exist, permit the operation, and accept
// the filter kind.
func (e *Engine) Validate(state State) error {
	for _, f := range state.Filters {
		v, ok := e.schema[f.Variable]
		if !ok {
			return errors.Newf(errors.ErrorTypeQuery, "filter references unknown variable %q", f.Variable)
		}
		if !v.Filterable {
			return errors.Newf(errors.ErrorTypeQuery, "variable %q is not filterable", f.Variable)
		}
		if err := checkFilterKind(f.Kind, meta.Kind(v.Type)); err != nil {
			return err
		}
	}
	for _, s := range state.Sorts {
		v, ok := e.schema[s.Variable]
		if !ok {
			return errors.Newf(errors.ErrorTypeQuery, "sort references unknown variable %q", s.Variable)
		}
		if !v.Sortable {
			return errors.Newf(errors.ErrorTypeQuery, "variable %q is not sortable", s.Variable)
		}
		if s.Direction != Ascending && s.Direction != Descending {
			return errors.Newf(errors.ErrorTypeQuery, "invalid sort direction %q on %q", s.Direction, s.Variable)
		}
	}
	for _, l := range state.Labels {
		if _, ok := e.schema[l]; !ok {
			return errors.Newf(errors.ErrorTypeQuery, "label references unknown variable %q", l)
		}
	}
	return nil
}

func checkFilterKind(kind FilterKind, varType meta.Kind) error {
	ok := false
	switch kind {
	case FilterRange:
		switch varType {
		case meta.KindNumber, meta.KindCurrency, meta.KindDate, meta.KindTime:
			ok = true
		}
	case FilterCategory:
		ok = varType == meta.KindFactor
	case FilterText:
		switch varType {
		case meta.KindText, meta.KindHref, meta.KindFactor:
			ok = true
		}
	default:
		return errors.Newf(errors.ErrorTypeQuery, "unknown filter kind %q", kind)
	}
	if !ok {
		return errors.Newf(errors.ErrorTypeQuery, "%s filter cannot apply to %s variable", kind, varType)
	}
	return nil
}

// filter keeps records matching ALL filters. A null value never
// matches any filter.
func (e *Engine) filter(filters []Filter, records []Record) ([]Record, error) {
	if len(filters) == 0 {
		out := make([]Record, len(records))
		copy(out, records)
		return out, nil
	}

	// Compile regex text filters once per query.
	patterns := make(map[int]*regexp.Regexp)
	for i, f := range filters {
		if f.Kind == FilterText && f.Regex {
			re, err := regexp.Compile("(?i)" + f.Query)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeQuery,
					fmt.Sprintf("invalid pattern in text filter on %q", f.Variable))
			}
			patterns[i] = re
		}
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		keep := true
		for i, f := range filters {
			if !e.matches(f, patterns[i], rec[f.Variable]) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (e *Engine) matches(f Filter, re *regexp.Regexp, value interface{}) bool {
	if value == nil {
		return false
	}
	v := e.schema[f.Variable]
	kind := meta.Kind(v.Type)
	switch f.Kind {
	case FilterRange:
		if kind == meta.KindDate || kind == meta.KindTime {
			t, ok := e.asTime(v, value)
			if !ok {
				return false
			}
			if f.MinTime != nil && t.Before(*f.MinTime) {
				return false
			}
			if f.MaxTime != nil && t.After(*f.MaxTime) {
				return false
			}
			return true
		}
		n, ok := asFloat(value)
		if !ok {
			return false
		}
		if f.Min != nil && n < *f.Min {
			return false
		}
		if f.Max != nil && n > *f.Max {
			return false
		}
		return true
	case FilterCategory:
		// Empty set is an explicit "match nothing", not "match all".
		s := asString(value)
		for _, want := range f.Values {
			if s == want {
				return true
			}
		}
		return false
	case FilterText:
		s := asString(value)
		if re != nil {
			return re.MatchString(s)
		}
		return matchesSubstring(s, f.Query)
	}
	return false
}

// sortRecords applies a stable multi-key sort in place. Ties on all
// keys preserve the incoming order, so repeated queries over the same
// records are deterministic. Null values order after non-null values
// in either direction.
func (e *Engine) sortRecords(sorts []Sort, records []Record) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, s := range sorts {
			c := e.compare(s, records[i][s.Variable], records[j][s.Variable])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func (e *Engine) compare(s Sort, a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	v := e.schema[s.Variable]
	c := 0
	switch meta.Kind(v.Type) {
	case meta.KindNumber, meta.KindCurrency:
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		switch {
		case !aok && !bok:
		case !aok:
			c = 1
		case !bok:
			c = -1
		case af < bf:
			c = -1
		case af > bf:
			c = 1
		}
	case meta.KindDate, meta.KindTime:
		at, aok := e.asTime(v, a)
		bt, bok := e.asTime(v, b)
		switch {
		case !aok && !bok:
		case !aok:
			c = 1
		case !bok:
			c = -1
		case at.Before(bt):
			c = -1
		case at.After(bt):
			c = 1
		}
	case meta.KindFactor:
		// Factors order by declared level position, not alphabetically.
		ai := levelIndex(v.Levels, asString(a))
		bi := levelIndex(v.Levels, asString(b))
		switch {
		case ai < bi:
			c = -1
		case ai > bi:
			c = 1
		}
	default:
		as, bs := asString(a), asString(b)
		switch {
		case as < bs:
			c = -1
		case as > bs:
			c = 1
		}
	}
	if s.Direction == Descending {
		c = -c
	}
	return c
}

func levelIndex(levels []string, value string) int {
	for i, l := range levels {
		if l == value {
			return i
		}
	}
	return len(levels)
}

func (e *Engine) asTime(v meta.WireVariable, value interface{}) (time.Time, bool) {
	switch t := value.(type) {
	case time.Time:
		return t, true
	case string:
		format := v.Format
		if format == "" {
			format = time.RFC3339
		}
		parsed, err := time.Parse(format, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func asFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func asString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// SaveView snapshots the state under a name. The snapshot is a deep
// copy with the page reset to 1, so later mutation of the live state
// cannot leak into the view. Saving over an existing name replaces it.
func (e *Engine) SaveView(name string, state State) (View, error) {
	if name == "" {
		return View{}, errors.New(errors.ErrorTypeValidation, "view name cannot be empty")
	}
	if err := e.Validate(state); err != nil {
		return View{}, err
	}
	snapshot := state.Clone()
	snapshot.Page = 1
	view := View{Name: name, State: snapshot}

	e.mu.Lock()
	e.views[name] = view
	e.mu.Unlock()

	e.logger.Info("view saved", zap.String("view", name))
	return view, nil
}

// LoadView returns a deep copy of the named view's state, positioned
// at page 1.
func (e *Engine) LoadView(name string) (State, error) {
	e.mu.RLock()
	view, ok := e.views[name]
	e.mu.RUnlock()
	if !ok {
		return State{}, errViewNotFound(name)
	}
	state := view.State.Clone()
	state.Page = 1
	return state, nil
}

// Views lists saved views sorted by name.
func (e *Engine) Views() []View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]View, 0, len(e.views))
	for _, v := range e.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RestoreViews seeds the engine with views loaded from a serialized
// specification.
func (e *Engine) RestoreViews(views []View) error {
	for _, v := range views {
		if v.Name == "" {
			return errors.New(errors.ErrorTypeValidation, "view name cannot be empty")
		}
		e.mu.Lock()
		e.views[v.Name] = v
		e.mu.Unlock()
	}
	return nil
}
