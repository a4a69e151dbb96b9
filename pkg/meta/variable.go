// Package meta provides the meta-variable type system: the tagged-variant
// hierarchy describing every non-panel column of a collection, plus the
// inference engine that maps raw columns onto variants.
package meta

import (
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/table"
)

// Kind identifies a meta-variable variant.
type Kind string

const (
	KindFactor   Kind = "factor"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindTime     Kind = "time"
	KindCurrency Kind = "currency"
	KindHref     Kind = "href"
	KindGraph    Kind = "graph"
	KindPanel    Kind = "panel"
	KindText     Kind = "text"
)

// TrendDirection describes how a Graph variable's sparkline should be read.
type TrendDirection string

const (
	TrendPositive TrendDirection = "positive"
	TrendNegative TrendDirection = "negative"
	TrendNeutral  TrendDirection = "neutral"
)

// Variable is a typed description of one table column. Each variant owns
// its serialization and validation rules.
type Variable interface {
	// Kind returns the variant tag
	Kind() Kind
	// Name returns the column name this variable describes
	Name() string
	// Filterable reports whether display filters may target this variable
	Filterable() bool
	// Sortable reports whether display sorts may target this variable
	Sortable() bool
	// Wire returns the structured record emitted into the specification
	Wire() WireVariable
	// Validate checks the variable against the actual column values.
	// A failure for a declared variable is fatal at build time, before
	// any rendering work begins.
	Validate(col table.Column) error
}

// Common holds the attributes shared by every variant.
type Common struct {
	VarName     string
	Label       string
	Description string
	CanFilter   bool
	CanSort     bool
	// NoData marks an all-null placeholder produced by inference
	NoData bool
}

// Name returns the column name.
func (c Common) Name() string { return c.VarName }

// Filterable reports whether filters may target this variable.
func (c Common) Filterable() bool { return c.CanFilter }

// Sortable reports whether sorts may target this variable.
func (c Common) Sortable() bool { return c.CanSort }

func (c Common) wire(kind Kind) WireVariable {
	return WireVariable{
		Type:        string(kind),
		Name:        c.VarName,
		Label:       c.Label,
		Description: c.Description,
		Filterable:  c.CanFilter,
		Sortable:    c.CanSort,
		NoData:      c.NoData,
	}
}

// WireVariable is the flat serialized form of a Variable. Field order is
// fixed so that re-serialization without data change is byte-stable.
type WireVariable struct {
	Type        string `json:"type"`
	Name        string `json:"varname"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Filterable  bool   `json:"filterable"`
	Sortable    bool   `json:"sortable"`
	NoData      bool   `json:"no_data,omitempty"`

	// Variant payloads
	Levels       []string           `json:"levels,omitempty"`
	Digits       int                `json:"digits,omitempty"`
	Locale       bool               `json:"locale,omitempty"`
	Currency     string             `json:"currency,omitempty"`
	Format       string             `json:"format,omitempty"`
	SourceColumn string             `json:"source_column,omitempty"`
	Direction    string             `json:"direction,omitempty"`
	PanelSource  *panels.WireSource `json:"panel_source,omitempty"`
}

// FromWire reconstructs a Variable from its serialized form.
func FromWire(w WireVariable) (Variable, error) {
	common := Common{
		VarName:     w.Name,
		Label:       w.Label,
		Description: w.Description,
		CanFilter:   w.Filterable,
		CanSort:     w.Sortable,
		NoData:      w.NoData,
	}

	switch Kind(w.Type) {
	case KindFactor:
		return &Factor{Common: common, Levels: w.Levels}, nil
	case KindNumber:
		return &Number{Common: common, Digits: w.Digits, Locale: w.Locale}, nil
	case KindCurrency:
		return &Currency{Common: common, Digits: w.Digits, Locale: w.Locale, Code: w.Currency}, nil
	case KindDate:
		return &Date{Common: common, Format: w.Format}, nil
	case KindTime:
		return &Time{Common: common, Format: w.Format}, nil
	case KindHref:
		return &Href{Common: common}, nil
	case KindGraph:
		return &Graph{Common: common, SourceColumn: w.SourceColumn, Direction: TrendDirection(w.Direction)}, nil
	case KindText:
		return &Text{Common: common}, nil
	case KindPanel:
		if w.PanelSource == nil {
			return nil, errors.Newf(errors.ErrorTypeSerialization,
				"panel variable %q has no panel source", w.Name)
		}
		src, err := panels.FromWire(*w.PanelSource)
		if err != nil {
			return nil, err
		}
		return &Panel{Common: common, Source: src}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeSerialization,
			"unknown meta-variable type %q for %q", w.Type, w.Name)
	}
}
