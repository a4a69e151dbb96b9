// Package spec serializes a collection into its versioned on-disk
// specification and loads it back. The document is the single source
// of truth a viewer needs: the schema, per-row metadata records, the
// default display state, saved views and a content-derived identity
// signature.
package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/ajitpratap0/trellis/pkg/display"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/meta"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/table"
)

// Version is the current specification schema version. Loaders accept
// any version up to this one.
const Version = 1

// FileName is the canonical specification file name inside a
// collection's root directory. Compressed variants append the codec
// extension.
const FileName = "spec.json"

var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidName reports whether a collection name is filesystem-safe:
// letters, digits, underscores and hyphens, not starting with a
// punctuation character.
func ValidName(name string) bool { return nameRE.MatchString(name) }

// RowRecord is one row's metadata in row order: the stable key plus
// every non-panel variable's value and the resolved panel reference.
type RowRecord struct {
	Key    string         `json:"key"`
	Values display.Record `json:"values"`
}

// Document is the wire form of a collection.
type Document struct {
	SpecVersion int                 `json:"spec_version"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Signature   string              `json:"signature"`
	KeyColumn   string              `json:"key_column,omitempty"`
	RowCount    int                 `json:"row_count"`
	Variables   []meta.WireVariable `json:"variables"`
	State       display.State       `json:"state"`
	Views       []display.View      `json:"views,omitempty"`
	Records     []RowRecord         `json:"records"`
}

// Validate checks the structural invariants a document must hold
// before it may be written or trusted after loading.
func (d *Document) Validate() error {
	if !ValidName(d.Name) {
		return errors.Newf(errors.ErrorTypeValidation,
			"collection name %q is not filesystem-safe", d.Name)
	}
	if d.SpecVersion < 1 || d.SpecVersion > Version {
		return errors.Newf(errors.ErrorTypeSerialization,
			"unsupported spec version %d", d.SpecVersion)
	}
	if d.Signature == "" {
		return errors.New(errors.ErrorTypeValidation, "document has no identity signature")
	}
	if d.RowCount != len(d.Records) {
		return errors.Newf(errors.ErrorTypeValidation,
			"row count %d does not match %d records", d.RowCount, len(d.Records))
	}

	panelVars := 0
	for _, v := range d.Variables {
		if meta.Kind(v.Type) != meta.KindPanel {
			continue
		}
		panelVars++
		if v.PanelSource == nil {
			return errors.Newf(errors.ErrorTypeValidation,
				"panel variable %q has no source", v.Name)
		}
		// An inline producer is a build-time construct. It must be
		// materialized into files or markup before serialization.
		if panels.SourceKind(v.PanelSource.Kind) == panels.SourceInlineFunction {
			return errors.Newf(errors.ErrorTypeSerialization,
				"panel variable %q still references an inline function source", v.Name)
		}
	}
	if panelVars != 1 {
		return errors.Newf(errors.ErrorTypeValidation,
			"collection must declare exactly one panel variable, found %d", panelVars)
	}

	engine := display.NewEngine(d.Variables)
	if err := engine.Validate(d.State); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "default display state is invalid")
	}
	for _, view := range d.Views {
		if err := engine.Validate(view.State); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation,
				fmt.Sprintf("saved view %q is invalid", view.Name))
		}
	}
	return nil
}

// Variable returns the schema entry for a name.
func (d *Document) Variable(name string) (meta.WireVariable, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return meta.WireVariable{}, false
}

// PanelVariable returns the document's single panel variable.
func (d *Document) PanelVariable() (meta.WireVariable, bool) {
	for _, v := range d.Variables {
		if meta.Kind(v.Type) == meta.KindPanel {
			return v, true
		}
	}
	return meta.WireVariable{}, false
}

// Signature derives a collection's identity from its name and data
// shape: the name, the ordered column names, the row count, and the
// first and last rows. Two builds over the same data agree; any change
// to shape or boundary rows produces a new identity. Row values hash
// through their canonical string form with the column name attached,
// so column reordering alone does not mask a content change.
func Signature(name string, tbl *table.Table) string {
	h := sha256.New()
	io.WriteString(h, name)
	for _, col := range tbl.ColumnNames() {
		io.WriteString(h, "\x00")
		io.WriteString(h, col)
	}
	fmt.Fprintf(h, "\x00%d", tbl.Len())
	if tbl.Len() > 0 {
		hashRow(h, tbl.Row(0))
		hashRow(h, tbl.Row(tbl.Len()-1))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashRow(h io.Writer, row map[string]interface{}) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%v", k, row[k])
	}
}
