package meta

import (
	"fmt"
	"sort"
	"time"

	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/table"
)

// Factor describes a categorical column with an ordered, de-duplicated
// level list. Levels must cover every observed value; there is no silent
// "other" bucket.
type Factor struct {
	Common
	Levels []string
}

func (v *Factor) Kind() Kind { return KindFactor }

func (v *Factor) Wire() WireVariable {
	w := v.Common.wire(KindFactor)
	w.Levels = v.Levels
	return w
}

func (v *Factor) Validate(col table.Column) error {
	levels := make(map[string]struct{}, len(v.Levels))
	for _, l := range v.Levels {
		if _, dup := levels[l]; dup {
			return errors.Newf(errors.ErrorTypeValidation,
				"factor %q has duplicate level %q", v.VarName, l)
		}
		levels[l] = struct{}{}
	}
	for i, val := range col.Values {
		if val == nil {
			continue
		}
		s := valueString(val)
		if _, ok := levels[s]; !ok {
			return errors.Newf(errors.ErrorTypeValidation,
				"factor %q: value %q at row %d not covered by levels", v.VarName, s, i)
		}
	}
	return nil
}

// Number describes a numeric column.
type Number struct {
	Common
	// Digits is the display precision
	Digits int
	// Locale enables locale-aware formatting in viewers
	Locale bool
}

func (v *Number) Kind() Kind { return KindNumber }

func (v *Number) Wire() WireVariable {
	w := v.Common.wire(KindNumber)
	w.Digits = v.Digits
	w.Locale = v.Locale
	return w
}

func (v *Number) Validate(col table.Column) error {
	return validateNumeric(v.VarName, col)
}

// Currency describes a numeric column formatted as money.
type Currency struct {
	Common
	Digits int
	Locale bool
	// Code is the ISO 4217 currency code
	Code string
}

func (v *Currency) Kind() Kind { return KindCurrency }

func (v *Currency) Wire() WireVariable {
	w := v.Common.wire(KindCurrency)
	w.Digits = v.Digits
	w.Locale = v.Locale
	w.Currency = v.Code
	return w
}

func (v *Currency) Validate(col table.Column) error {
	if len(v.Code) != 3 {
		return errors.Newf(errors.ErrorTypeValidation,
			"currency %q: %q is not an ISO currency code", v.VarName, v.Code)
	}
	return validateNumeric(v.VarName, col)
}

// Date describes a calendar-date column.
type Date struct {
	Common
	// Format is the Go reference-time layout used on the wire
	Format string
}

func (v *Date) Kind() Kind { return KindDate }

func (v *Date) Wire() WireVariable {
	w := v.Common.wire(KindDate)
	w.Format = v.Format
	return w
}

func (v *Date) Validate(col table.Column) error {
	return validateTemporal(v.VarName, col, v.Format)
}

// Time describes a timestamp column with a clock component.
type Time struct {
	Common
	Format string
}

func (v *Time) Kind() Kind { return KindTime }

func (v *Time) Wire() WireVariable {
	w := v.Common.wire(KindTime)
	w.Format = v.Format
	return w
}

func (v *Time) Validate(col table.Column) error {
	return validateTemporal(v.VarName, col, v.Format)
}

// Href describes a column of hyperlinks shown under panels.
type Href struct {
	Common
}

func (v *Href) Kind() Kind { return KindHref }

func (v *Href) Wire() WireVariable { return v.Common.wire(KindHref) }

func (v *Href) Validate(col table.Column) error {
	for i, val := range col.Values {
		if val == nil {
			continue
		}
		if _, ok := val.(string); !ok {
			return errors.Newf(errors.ErrorTypeValidation,
				"href %q: value at row %d is not a string", v.VarName, i)
		}
	}
	return nil
}

// Graph describes a column of fixed-length numeric arrays rendered as
// sparklines, with a trend direction hint.
type Graph struct {
	Common
	// SourceColumn names the array-valued column holding the series
	SourceColumn string
	Direction    TrendDirection
}

func (v *Graph) Kind() Kind { return KindGraph }

func (v *Graph) Wire() WireVariable {
	w := v.Common.wire(KindGraph)
	w.SourceColumn = v.SourceColumn
	w.Direction = string(v.Direction)
	return w
}

func (v *Graph) Validate(col table.Column) error {
	length := -1
	for i, val := range col.Values {
		if val == nil {
			continue
		}
		series, ok := numericSeries(val)
		if !ok {
			return errors.Newf(errors.ErrorTypeValidation,
				"graph %q: value at row %d is not a numeric array", v.VarName, i)
		}
		if length == -1 {
			length = len(series)
		} else if len(series) != length {
			return errors.Newf(errors.ErrorTypeValidation,
				"graph %q: array at row %d has length %d, expected %d",
				v.VarName, i, len(series), length)
		}
	}
	return nil
}

// Text describes a free-text column; not filterable or sortable by default.
type Text struct {
	Common
}

func (v *Text) Kind() Kind { return KindText }

func (v *Text) Wire() WireVariable { return v.Common.wire(KindText) }

func (v *Text) Validate(table.Column) error { return nil }

// Panel designates the column holding each row's renderable figure and
// nests the panel source describing where rendered content lives.
type Panel struct {
	Common
	Source panels.Source
}

func (v *Panel) Kind() Kind { return KindPanel }

func (v *Panel) Wire() WireVariable {
	w := v.Common.wire(KindPanel)
	if v.Source != nil {
		ws := v.Source.Wire()
		w.PanelSource = &ws
	}
	return w
}

func (v *Panel) Validate(col table.Column) error {
	if v.Source == nil {
		return errors.Newf(errors.ErrorTypeValidation, "panel %q has no panel source", v.VarName)
	}
	if col.Len() > 0 && len(col.NonNull()) == 0 {
		return errors.Newf(errors.ErrorTypeValidation, "panel column %q holds no values", v.VarName)
	}
	return nil
}

// FactorLevels computes the ordered, de-duplicated level list for a
// column. The result is deterministic for the same input so repeated
// serialization without data change stays byte-stable.
func FactorLevels(col table.Column) []string {
	seen := make(map[string]struct{})
	levels := make([]string, 0)
	for _, val := range col.Values {
		if val == nil {
			continue
		}
		s := valueString(val)
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			levels = append(levels, s)
		}
	}
	sort.Strings(levels)
	return levels
}

func validateNumeric(name string, col table.Column) error {
	for i, val := range col.Values {
		if val == nil {
			continue
		}
		if _, ok := toFloat(val); !ok {
			return errors.Newf(errors.ErrorTypeValidation,
				"%q: value %v at row %d is not numeric or null", name, val, i)
		}
	}
	return nil
}

func validateTemporal(name string, col table.Column, format string) error {
	for i, val := range col.Values {
		if val == nil {
			continue
		}
		switch t := val.(type) {
		case time.Time:
			continue
		case string:
			if format == "" {
				return errors.Newf(errors.ErrorTypeValidation,
					"%q: string values require a format", name)
			}
			if _, err := time.Parse(format, t); err != nil {
				return errors.Newf(errors.ErrorTypeValidation,
					"%q: value %q at row %d does not match format %q", name, t, i, format)
			}
		default:
			return errors.Newf(errors.ErrorTypeValidation,
				"%q: value at row %d is not temporal", name, i)
		}
	}
	return nil
}

// toFloat converts supported numeric types to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// numericSeries extracts a numeric array from supported slice shapes.
func numericSeries(v interface{}) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []int:
		out := make([]float64, len(s))
		for i, n := range s {
			out[i] = float64(n)
		}
		return out, true
	case []interface{}:
		out := make([]float64, len(s))
		for i, n := range s {
			f, ok := toFloat(n)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func valueString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
