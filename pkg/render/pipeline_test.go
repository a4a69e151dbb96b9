package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/table"
)

func pngPanel(seed byte) []byte {
	return append(append([]byte{}, pngMagic...), seed, seed, seed)
}

func panelTable(t *testing.T, values ...interface{}) *table.Table {
	t.Helper()
	keys := make([]interface{}, len(values))
	for i := range values {
		keys[i] = fmt.Sprintf("row-%d", i)
	}
	tbl, err := table.New(
		table.Column{Name: "id", Values: keys},
		table.Column{Name: "chart", Values: values},
	)
	require.NoError(t, err)
	require.NoError(t, tbl.SetKeyColumn("id"))
	return tbl
}

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	return reg
}

func newTestPipeline(t *testing.T, cfg Config, reg *Registry) *Pipeline {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	return NewPipeline(cfg, reg, zaptest.NewLogger(t))
}

func TestRenderAllPanels(t *testing.T) {
	tbl := panelTable(t, pngPanel(1), pngPanel(2), pngPanel(3))
	root := t.TempDir()
	p := newTestPipeline(t, Config{Collection: "demo", Root: root}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, FormatPNG, summary.Format)

	src, ok := summary.Source.(*panels.LocalFile)
	require.True(t, ok)
	assert.Equal(t, "panels", src.Base)
	assert.Equal(t, "png", src.Ext)

	for i := 0; i < 3; i++ {
		path := filepath.Join(root, "panels", fmt.Sprintf("row-%d.png", i))
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Positive(t, info.Size())
	}
}

func TestRenderFailureDoesNotAbortSiblings(t *testing.T) {
	// Row 1 is unrecognizable; the other rows must still render.
	tbl := panelTable(t, pngPanel(1), 42, pngPanel(3))
	p := newTestPipeline(t, Config{Collection: "demo"}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 1, summary.Failures[0].Row)
	assert.Equal(t, "row-1", summary.Failures[0].Key)
	assert.Equal(t, StateFailed, summary.Failures[0].State)
	assert.Contains(t, summary.Failures[0].Reason, "unrecognized")

	assert.Nil(t, summary.Artifacts[1])
	assert.NotNil(t, summary.Artifacts[0])
	assert.NotNil(t, summary.Artifacts[2])
}

func TestRenderStrictFailsAfterBatch(t *testing.T) {
	tbl := panelTable(t, pngPanel(1), 42, pngPanel(3))
	p := newTestPipeline(t, Config{Collection: "demo", Strict: true}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRender))

	// The whole batch still ran before the failure was promoted.
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Succeeded)
}

func TestRenderNullPanelFails(t *testing.T) {
	tbl := panelTable(t, pngPanel(1), nil)
	p := newTestPipeline(t, Config{Collection: "demo"}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Failures[0].Reason, "null")
}

func TestRenderMixedFormatsFatal(t *testing.T) {
	// Single worker, chunk of one: row 0 fixes the format, row 1 trips.
	tbl := panelTable(t, pngPanel(1), `<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	p := newTestPipeline(t, Config{Collection: "demo", Workers: 1, ChunkSize: 1}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
	assert.Contains(t, err.Error(), "row 1")
	assert.Contains(t, err.Error(), "cannot mix")

	// The conforming panel still rendered.
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Succeeded)
}

// erroringAdapter recognizes its values but never renders them.
type erroringAdapter struct {
	stubAdapter
}

func (a *erroringAdapter) Render(context.Context, interface{}, OutputSlot) (*Artifact, error) {
	return nil, errors.New(errors.ErrorTypeRender, "renderer crashed")
}

func TestRenderFormatFixedBySuccessNotDetection(t *testing.T) {
	// Row 0 is claimed by a PNG adapter that always fails; row 1 is real
	// SVG markup. The failed render must not fix the collection format,
	// so the SVG panel still goes through.
	reg := NewRegistry()
	require.NoError(t, reg.Register(&erroringAdapter{stubAdapter{
		name:   "broken-png",
		format: FormatPNG,
		claims: func(v interface{}) bool { _, ok := v.([]byte); return ok },
	}}))
	require.NoError(t, reg.Register(&SVGAdapter{}))

	tbl := panelTable(t, []byte{1, 2, 3}, `<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	root := t.TempDir()
	p := newTestPipeline(t, Config{Collection: "demo", Root: root, Workers: 1, ChunkSize: 1}, reg)

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, FormatSVG, summary.Format)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 0, summary.Failures[0].Row)
	assert.Contains(t, summary.Failures[0].Reason, "renderer crashed")

	src, ok := summary.Source.(*panels.LocalFile)
	require.True(t, ok)
	assert.Equal(t, "svg", src.Ext)

	_, statErr := os.Stat(filepath.Join(root, "panels", "row-1.svg"))
	require.NoError(t, statErr)
}

func TestRenderAllFailedDerivesNoSource(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&erroringAdapter{stubAdapter{
		name:   "broken",
		format: FormatPNG,
		claims: claimAll,
	}}))

	tbl := panelTable(t, []byte{1}, []byte{2})
	p := newTestPipeline(t, Config{Collection: "demo"}, reg)

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)

	// With zero successful renders no format was ever fixed, so no
	// panel source can be derived.
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Nil(t, summary.Source)
	assert.Equal(t, Format(""), summary.Format)
}

func TestRenderSkipsFreshArtifacts(t *testing.T) {
	tbl := panelTable(t, pngPanel(1), pngPanel(2), pngPanel(3))
	root := t.TempDir()
	reg := builtinRegistry(t)

	first := newTestPipeline(t, Config{Collection: "demo", Root: root, Workers: 1, ChunkSize: 1}, reg)
	_, err := first.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)

	// A fresh pipeline discovers the format on its first render, then
	// reuses every remaining artifact.
	second := newTestPipeline(t, Config{Collection: "demo", Root: root, Workers: 1, ChunkSize: 1}, reg)
	summary, err := second.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 3, summary.Succeeded)

	// Force re-renders everything.
	forced := newTestPipeline(t, Config{Collection: "demo", Root: root, Workers: 1, ChunkSize: 1, Force: true}, reg)
	summary, err = forced.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)
	assert.Zero(t, summary.Skipped)
}

func TestRenderThunkForcedOnce(t *testing.T) {
	var calls int32
	thunk := NewThunk(func() interface{} {
		atomic.AddInt32(&calls, 1)
		return pngPanel(7)
	})
	tbl := panelTable(t, thunk)
	p := newTestPipeline(t, Config{Collection: "demo"}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRenderThunkProducingNullFails(t *testing.T) {
	thunk := NewThunk(func() interface{} { return nil })
	tbl := panelTable(t, thunk)
	p := newTestPipeline(t, Config{Collection: "demo"}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestRenderInlineMarkup(t *testing.T) {
	tbl := panelTable(t, "<div>alpha</div>", "<div>beta</div>")
	root := t.TempDir()
	p := newTestPipeline(t, Config{Collection: "demo", Root: root}, builtinRegistry(t))

	summary, err := p.Render(context.Background(), tbl, "chart")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, FormatHTML, summary.Format)

	_, ok := summary.Source.(*panels.RawMarkup)
	assert.True(t, ok, "inline markup collections use a raw markup source")

	require.NotNil(t, summary.Artifacts[0])
	assert.True(t, summary.Artifacts[0].Inline())
	assert.Equal(t, "<div>alpha</div>", summary.Artifacts[0].Markup)

	// Nothing lands in the panel directory.
	entries, err := os.ReadDir(filepath.Join(root, "panels"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRenderMissingPanelColumn(t *testing.T) {
	tbl := panelTable(t, pngPanel(1))
	p := newTestPipeline(t, Config{Collection: "demo"}, builtinRegistry(t))

	_, err := p.Render(context.Background(), tbl, "nope")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestThunkForceHandsOffValue(t *testing.T) {
	var calls int32
	thunk := NewThunk(func() interface{} {
		atomic.AddInt32(&calls, 1)
		return "value"
	})

	// The first call hands the value off; the thunk keeps nothing.
	assert.Equal(t, "value", thunk.Force())
	assert.Nil(t, thunk.Force())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAutoWorkersNeverExceedsRows(t *testing.T) {
	p := newTestPipeline(t, Config{Collection: "demo", Workers: 32}, builtinRegistry(t))
	assert.Equal(t, 2, p.autoWorkers(2))
	assert.Equal(t, 1, p.autoWorkers(1))
}
