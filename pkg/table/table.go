// Package table provides the in-memory column-ordered table that collection
// builds consume. One column holds the renderable panel value per row; the
// rest are described by inferred or declared meta-variables.
package table

import (
	"fmt"

	"github.com/ajitpratap0/trellis/pkg/errors"
)

// Column is a named, ordered list of cell values. A nil cell is a null.
type Column struct {
	Name   string
	Values []interface{}
}

// Len returns the number of cells in the column.
func (c Column) Len() int { return len(c.Values) }

// NonNull returns the column's non-nil values in order.
func (c Column) NonNull() []interface{} {
	out := make([]interface{}, 0, len(c.Values))
	for _, v := range c.Values {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Table is an ordered set of equal-length columns with a stable row key.
// Tables are built once and treated as immutable afterwards; concurrent
// reads are safe without locking.
type Table struct {
	columns   []Column
	index     map[string]int
	keyColumn string
	rows      int
}

// New creates a table from ordered columns. All columns must have the
// same length.
func New(columns ...Column) (*Table, error) {
	t := &Table{
		index: make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		if err := t.addColumn(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) addColumn(col Column) error {
	if col.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "column name must not be empty")
	}
	if _, exists := t.index[col.Name]; exists {
		return errors.Newf(errors.ErrorTypeValidation, "duplicate column %q", col.Name)
	}
	if len(t.columns) > 0 && col.Len() != t.rows {
		return errors.Newf(errors.ErrorTypeValidation,
			"column %q has %d rows, expected %d", col.Name, col.Len(), t.rows)
	}
	if len(t.columns) == 0 {
		t.rows = col.Len()
	}
	t.index[col.Name] = len(t.columns)
	t.columns = append(t.columns, col)
	return nil
}

// SetKeyColumn designates the column whose values form the stable row key.
// Key values must be unique across rows.
func (t *Table) SetKeyColumn(name string) error {
	col, ok := t.Column(name)
	if !ok {
		return errors.Newf(errors.ErrorTypeValidation, "key column %q not found", name)
	}
	seen := make(map[string]struct{}, col.Len())
	for i, v := range col.Values {
		key := fmt.Sprintf("%v", v)
		if _, dup := seen[key]; dup {
			return errors.Newf(errors.ErrorTypeValidation,
				"key column %q has duplicate value %q at row %d", name, key, i)
		}
		seen[key] = struct{}{}
	}
	t.keyColumn = name
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Cell returns the value at (row, column).
func (t *Table) Cell(row int, column string) (interface{}, bool) {
	col, ok := t.Column(column)
	if !ok || row < 0 || row >= col.Len() {
		return nil, false
	}
	return col.Values[row], true
}

// Row returns a copy of the row as a name -> value map.
func (t *Table) Row(i int) map[string]interface{} {
	if i < 0 || i >= t.rows {
		return nil
	}
	row := make(map[string]interface{}, len(t.columns))
	for _, col := range t.columns {
		row[col.Name] = col.Values[i]
	}
	return row
}

// Key returns the stable row key for row i: the key column's value when
// one is designated, else the decimal row index. Panel artifacts and
// per-row metadata records are both keyed by this value.
func (t *Table) Key(i int) string {
	if t.keyColumn != "" {
		if v, ok := t.Cell(i, t.keyColumn); ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%d", i)
}

// KeyColumn returns the designated key column name, or empty.
func (t *Table) KeyColumn() string { return t.keyColumn }
