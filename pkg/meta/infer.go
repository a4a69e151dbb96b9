package meta

import (
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/table"
)

// DefaultFactorThreshold is the inclusive unique-value bound below which
// a string column is inferred as a Factor.
const DefaultFactorThreshold = 50

// InferenceEngine maps raw columns to concrete meta-variable variants.
// Inference is advisory: an explicit variable declaration on the same
// column name always overrides it and is validated, not re-inferred.
type InferenceEngine struct {
	logger *zap.Logger

	// Type detection patterns
	urlPattern   *regexp.Regexp
	datePatterns []*regexp.Regexp
	timePatterns []*regexp.Regexp

	// Configuration
	factorThreshold int
	dateFormat      string
	timeFormat      string
}

// InferenceOption customizes an InferenceEngine.
type InferenceOption func(*InferenceEngine)

// WithFactorThreshold overrides the Factor unique-value bound.
func WithFactorThreshold(n int) InferenceOption {
	return func(e *InferenceEngine) {
		if n > 0 {
			e.factorThreshold = n
		}
	}
}

// WithTemporalFormats overrides the wire formats given to inferred
// Date and Time variables.
func WithTemporalFormats(dateFormat, timeFormat string) InferenceOption {
	return func(e *InferenceEngine) {
		if dateFormat != "" {
			e.dateFormat = dateFormat
		}
		if timeFormat != "" {
			e.timeFormat = timeFormat
		}
	}
}

// NewInferenceEngine creates a new inference engine.
func NewInferenceEngine(logger *zap.Logger, opts ...InferenceOption) *InferenceEngine {
	e := &InferenceEngine{
		logger:          logger,
		factorThreshold: DefaultFactorThreshold,
		dateFormat:      "2006-01-02",
		timeFormat:      "2006-01-02 15:04:05",
	}
	e.initializePatterns()
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *InferenceEngine) initializePatterns() {
	e.urlPattern = regexp.MustCompile(`^https?://[^\s]+$`)
	e.datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), // YYYY-MM-DD
		regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`), // YYYY/MM/DD
	}
	e.timePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`), // ISO 8601
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`), // SQL timestamp
	}
}

// Infer maps one column to a concrete meta-variable. An all-null column
// yields a Number placeholder flagged NoData rather than failing; ties
// at exactly the factor threshold resolve to Factor.
func (e *InferenceEngine) Infer(col table.Column) Variable {
	nonNull := col.NonNull()

	common := Common{
		VarName:   col.Name,
		Label:     col.Name,
		CanFilter: true,
		CanSort:   true,
	}

	if len(nonNull) == 0 {
		common.NoData = true
		e.logger.Debug("column has no data, inferring number placeholder",
			zap.String("column", col.Name))
		return &Number{Common: common, Digits: 2}
	}

	switch {
	case allOf(nonNull, isBool):
		// Both levels always exist for a boolean column, observed or not.
		return &Factor{Common: common, Levels: []string{"false", "true"}}

	case allOf(nonNull, isNumeric):
		return &Number{Common: common, Digits: 2}

	case allOf(nonNull, isTemporal):
		if anyHasClock(nonNull) {
			return &Time{Common: common, Format: e.timeFormat}
		}
		return &Date{Common: common, Format: e.dateFormat}

	case allOf(nonNull, isSeries):
		graph := common
		graph.CanFilter = false
		return &Graph{Common: graph, SourceColumn: col.Name, Direction: TrendNeutral}

	case allOf(nonNull, isString):
		return e.inferString(col, nonNull, common)

	default:
		// Mixed value kinds fall back to free text
		text := common
		text.CanFilter = false
		text.CanSort = false
		e.logger.Debug("column holds mixed types, inferring free text",
			zap.String("column", col.Name))
		return &Text{Common: text}
	}
}

// inferString resolves the string-column rules: Factor below the
// threshold (inclusive), then Href, then temporal patterns, then Text.
func (e *InferenceEngine) inferString(col table.Column, nonNull []interface{}, common Common) Variable {
	unique := countUnique(nonNull)
	if unique <= e.factorThreshold {
		return &Factor{Common: common, Levels: FactorLevels(col)}
	}

	if e.allMatch(nonNull, func(s string) bool { return e.urlPattern.MatchString(s) }) {
		return &Href{Common: common}
	}

	if e.allMatch(nonNull, e.matchesTime) {
		return &Time{Common: common, Format: e.timeFormat}
	}
	if e.allMatch(nonNull, e.matchesDate) {
		return &Date{Common: common, Format: e.dateFormat}
	}

	text := common
	text.CanFilter = false
	text.CanSort = false
	return &Text{Common: text}
}

func (e *InferenceEngine) matchesDate(s string) bool {
	for _, p := range e.datePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func (e *InferenceEngine) matchesTime(s string) bool {
	for _, p := range e.timePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func (e *InferenceEngine) allMatch(values []interface{}, pred func(string) bool) bool {
	for _, v := range values {
		s, ok := v.(string)
		if !ok || !pred(s) {
			return false
		}
	}
	return true
}

func allOf(values []interface{}, pred func(interface{}) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isBool(v interface{}) bool {
	_, ok := v.(bool)
	return ok
}

func isNumeric(v interface{}) bool {
	_, ok := toFloat(v)
	return ok
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func isTemporal(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
}

func isSeries(v interface{}) bool {
	_, ok := numericSeries(v)
	return ok
}

func anyHasClock(values []interface{}) bool {
	for _, v := range values {
		t, ok := v.(time.Time)
		if !ok {
			continue
		}
		h, m, s := t.Clock()
		if h != 0 || m != 0 || s != 0 {
			return true
		}
	}
	return false
}

func countUnique(values []interface{}) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[valueString(v)] = struct{}{}
	}
	return len(seen)
}
