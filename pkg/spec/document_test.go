package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/trellis/pkg/display"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/meta"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/table"
)

func testTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New(
		table.Column{Name: "id", Values: []interface{}{"a", "b", "c"}},
		table.Column{Name: "value", Values: []interface{}{1.0, 2.0, 3.0}},
	)
	require.NoError(t, err)
	require.NoError(t, tbl.SetKeyColumn("id"))
	return tbl
}

func testDocument(t *testing.T) *Document {
	t.Helper()
	tbl := testTable(t)
	src := panels.LocalFile{Base: "panels", Ext: "png"}
	wireSrc := src.Wire()
	return &Document{
		SpecVersion: Version,
		Name:        "my-collection",
		Signature:   Signature("my-collection", tbl),
		KeyColumn:   "id",
		RowCount:    3,
		Variables: []meta.WireVariable{
			{Type: "number", Name: "value", Filterable: true, Sortable: true},
			{Type: "panel", Name: "chart", PanelSource: &wireSrc},
		},
		State: display.State{Page: 1},
		Records: []RowRecord{
			{Key: "a", Values: display.Record{"value": 1.0, "chart": "panels/a.png"}},
			{Key: "b", Values: display.Record{"value": 2.0, "chart": "panels/b.png"}},
			{Key: "c", Values: display.Record{"value": 3.0, "chart": "panels/c.png"}},
		},
	}
}

func TestSignatureDeterministic(t *testing.T) {
	a := Signature("demo", testTable(t))
	b := Signature("demo", testTable(t))
	assert.Equal(t, a, b, "same name and data always agree")
	assert.Len(t, a, 64)
}

func TestSignatureChangesWithContent(t *testing.T) {
	base := Signature("demo", testTable(t))

	t.Run("name", func(t *testing.T) {
		assert.NotEqual(t, base, Signature("other", testTable(t)))
	})

	t.Run("column names", func(t *testing.T) {
		tbl, err := table.New(
			table.Column{Name: "id", Values: []interface{}{"a", "b", "c"}},
			table.Column{Name: "amount", Values: []interface{}{1.0, 2.0, 3.0}},
		)
		require.NoError(t, err)
		assert.NotEqual(t, base, Signature("demo", tbl))
	})

	t.Run("row count", func(t *testing.T) {
		tbl, err := table.New(
			table.Column{Name: "id", Values: []interface{}{"a", "b"}},
			table.Column{Name: "value", Values: []interface{}{1.0, 2.0}},
		)
		require.NoError(t, err)
		assert.NotEqual(t, base, Signature("demo", tbl))
	})

	t.Run("boundary row", func(t *testing.T) {
		tbl, err := table.New(
			table.Column{Name: "id", Values: []interface{}{"a", "b", "c"}},
			table.Column{Name: "value", Values: []interface{}{1.0, 2.0, 99.0}},
		)
		require.NoError(t, err)
		assert.NotEqual(t, base, Signature("demo", tbl))
	})
}

func TestDocumentValidate(t *testing.T) {
	require.NoError(t, testDocument(t).Validate())
}

func TestDocumentValidateRejectsBadName(t *testing.T) {
	doc := testDocument(t)
	doc.Name = "has spaces/and slashes"
	err := doc.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestDocumentValidateRejectsInlineSource(t *testing.T) {
	doc := testDocument(t)
	doc.Variables[1].PanelSource = &panels.WireSource{Kind: string(panels.SourceInlineFunction)}
	err := doc.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSerialization))
}

func TestDocumentValidateRequiresOnePanel(t *testing.T) {
	doc := testDocument(t)
	doc.Variables = doc.Variables[:1]
	require.Error(t, doc.Validate())

	doc = testDocument(t)
	doc.Variables = append(doc.Variables, doc.Variables[1])
	require.Error(t, doc.Validate())
}

func TestDocumentValidateRowCountMismatch(t *testing.T) {
	doc := testDocument(t)
	doc.RowCount = 5
	require.Error(t, doc.Validate())
}

func TestDocumentValidateStateAgainstSchema(t *testing.T) {
	doc := testDocument(t)
	doc.State.Filters = []display.Filter{display.NewTextFilter("missing", "x")}
	require.Error(t, doc.Validate())
}

func TestDocumentValidateVersion(t *testing.T) {
	doc := testDocument(t)
	doc.SpecVersion = Version + 1
	err := doc.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSerialization))
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("my-collection_2"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("-leading"))
	assert.False(t, ValidName("has space"))
	assert.False(t, ValidName("slash/run"))
}
