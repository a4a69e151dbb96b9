// Package build orchestrates a full collection build: validate the
// declared schema, infer the rest, render panels, optionally deploy to
// object storage, and write the specification.
package build

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/compression"
	"github.com/ajitpratap0/trellis/pkg/config"
	"github.com/ajitpratap0/trellis/pkg/display"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/logger"
	"github.com/ajitpratap0/trellis/pkg/meta"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/render"
	"github.com/ajitpratap0/trellis/pkg/spec"
	"github.com/ajitpratap0/trellis/pkg/table"
	"github.com/ajitpratap0/trellis/pkg/upload"
)

// Builder assembles one collection from a table, a panel column and
// optional declared variables.
type Builder struct {
	cfg   *config.BuildConfig
	tbl   *table.Table
	panel string

	declared map[string]meta.Variable
	state    display.State
	hasState bool
	views    []display.View

	uploader upload.Uploader
	logger   *zap.Logger
}

// Result reports what a build produced.
type Result struct {
	Document *spec.Document
	SpecPath string
	Render   *render.Summary
	Uploaded int
}

// New creates a builder. The panel column must exist in the table.
func New(cfg *config.BuildConfig, tbl *table.Table, panelColumn string) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !spec.ValidName(cfg.Name) {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"collection name %q is not filesystem-safe", cfg.Name)
	}
	if !tbl.HasColumn(panelColumn) {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"panel column %q not found in table", panelColumn)
	}
	return &Builder{
		cfg:      cfg,
		tbl:      tbl,
		panel:    panelColumn,
		declared: make(map[string]meta.Variable),
		logger:   logger.Get().Named("build").With(zap.String("collection", cfg.Name)),
	}, nil
}

// Declare overrides inference for one column. The variable is
// validated against the column's actual values before any rendering
// starts, so a bad declaration fails the build early.
func (b *Builder) Declare(v meta.Variable) error {
	name := v.Name()
	if name == b.panel {
		return errors.Newf(errors.ErrorTypeValidation,
			"column %q is the panel column and cannot carry a declared variable", name)
	}
	col, ok := b.tbl.Column(name)
	if !ok {
		return errors.Newf(errors.ErrorTypeValidation, "declared variable %q has no column", name)
	}
	if err := v.Validate(col); err != nil {
		return err
	}
	b.declared[name] = v
	return nil
}

// SetState fixes the default display state written into the
// specification. Without one the document carries an empty state at
// page 1.
func (b *Builder) SetState(state display.State) { b.state, b.hasState = state, true }

// AddView registers a named saved view.
func (b *Builder) AddView(name string, state display.State) {
	snapshot := state.Clone()
	snapshot.Page = 1
	b.views = append(b.views, display.View{Name: name, State: snapshot})
}

// SetUploader provides a pre-built uploader, mainly for tests. Build
// otherwise constructs one from the configuration when upload is
// enabled.
func (b *Builder) SetUploader(u upload.Uploader) { b.uploader = u }

// Build runs the pipeline end to end and returns the written
// specification. Declared variables were validated at Declare time;
// inference, rendering, upload and serialization happen here, in that
// order.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	variables, err := b.resolveVariables()
	if err != nil {
		return nil, err
	}

	summary, err := b.renderPanels(ctx)
	if err != nil {
		return nil, err
	}

	source := summary.Source
	if source == nil {
		return nil, errors.Newf(errors.ErrorTypeRender,
			"no panel rendered successfully; cannot derive a panel source for %q", b.cfg.Name)
	}
	if b.cfg.Upload.HasUpload() {
		if b.uploader == nil {
			b.uploader, err = upload.New(ctx, b.cfg.Upload)
			if err != nil {
				return nil, err
			}
			defer b.uploader.Close()
		}
		if !source.Standalone() {
			source = b.uploader.PanelSource("panels")
		}
	}

	doc, err := b.assemble(variables, summary, source)
	if err != nil {
		return nil, err
	}

	writer := b.specWriter()
	path, err := writer.WriteFile(doc, b.cfg.Root)
	if err != nil {
		return nil, err
	}

	uploaded := 0
	if b.uploader != nil {
		uploaded, err = b.uploader.UploadDir(ctx, b.cfg.Root)
		if err != nil {
			return nil, err
		}
	}

	b.logger.Info("build complete",
		zap.Int("rows", b.tbl.Len()),
		zap.Int("rendered", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.String("spec", path))

	return &Result{
		Document: doc,
		SpecPath: path,
		Render:   summary,
		Uploaded: uploaded,
	}, nil
}

// resolveVariables returns the non-panel schema: declared variables
// win, inference fills the rest.
func (b *Builder) resolveVariables() ([]meta.Variable, error) {
	engine := meta.NewInferenceEngine(b.logger,
		meta.WithFactorThreshold(b.cfg.Inference.FactorThreshold),
		meta.WithTemporalFormats(b.cfg.Inference.DateFormat, b.cfg.Inference.TimeFormat))

	var out []meta.Variable
	for _, name := range b.tbl.ColumnNames() {
		if name == b.panel {
			continue
		}
		if v, ok := b.declared[name]; ok {
			out = append(out, v)
			continue
		}
		col, _ := b.tbl.Column(name)
		out = append(out, engine.Infer(col))
	}
	return out, nil
}

func (b *Builder) renderPanels(ctx context.Context) (*render.Summary, error) {
	pipeline := render.NewPipeline(render.Config{
		Collection:    b.cfg.Name,
		Root:          b.cfg.Root,
		Workers:       b.cfg.Render.Workers,
		ChunkSize:     b.cfg.Render.ChunkSize,
		Strict:        b.cfg.Render.Strict,
		Force:         b.cfg.Render.Force,
		MemoryLimitMB: b.cfg.Render.MemoryLimitMB,
		Timeout:       b.cfg.Render.Timeout.Std(),
	}, nil, b.logger)
	return pipeline.Render(ctx, b.tbl, b.panel)
}

// assemble builds the wire document. Each row's record carries every
// non-panel value plus the resolved panel reference; rows whose panel
// failed record a null reference so one bad row never hides its
// metadata.
func (b *Builder) assemble(variables []meta.Variable, summary *render.Summary, source panels.Source) (*spec.Document, error) {
	wire := make([]meta.WireVariable, 0, len(variables)+1)
	for _, v := range variables {
		wire = append(wire, v.Wire())
	}
	panelVar := &meta.Panel{
		Common: meta.Common{VarName: b.panel},
		Source: source,
	}
	wire = append(wire, panelVar.Wire())

	records := make([]spec.RowRecord, b.tbl.Len())
	for i := 0; i < b.tbl.Len(); i++ {
		key := b.tbl.Key(i)
		values := make(display.Record, len(variables)+1)
		for _, v := range variables {
			cell, _ := b.tbl.Cell(i, v.Name())
			values[v.Name()] = cell
		}
		values[b.panel] = b.panelReference(summary, source, i, key)
		records[i] = spec.RowRecord{Key: key, Values: values}
	}

	state := b.state
	if !b.hasState {
		state = display.State{Page: 1}
	}
	if state.Page < 1 {
		state.Page = 1
	}

	doc := &spec.Document{
		SpecVersion: spec.Version,
		Name:        b.cfg.Name,
		Description: b.cfg.Description,
		Signature:   spec.Signature(b.cfg.Name, b.tbl),
		KeyColumn:   b.tbl.KeyColumn(),
		RowCount:    b.tbl.Len(),
		Variables:   wire,
		State:       state,
		Views:       b.views,
		Records:     records,
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// panelReference resolves one row's panel value for the record set.
// Inline artifacts embed their markup; file artifacts resolve through
// the source so local and remote collections share one code path.
func (b *Builder) panelReference(summary *render.Summary, source panels.Source, row int, key string) interface{} {
	a := summary.Artifacts[row]
	if a == nil {
		return nil
	}
	if a.Inline() {
		return a.Markup
	}
	ref, err := source.Resolve(key, "")
	if err != nil {
		b.logger.Warn("panel reference resolution failed",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	return ref
}

func (b *Builder) specWriter() *spec.Writer {
	var opts []spec.WriterOption
	if b.cfg.Output.Pretty {
		opts = append(opts, spec.WithPretty())
	}
	if b.cfg.Output.CompressMetadata {
		opts = append(opts, spec.WithCompression(outputAlgorithm(b.cfg.Output.CompressionAlgorithm)))
	}
	return spec.NewWriter(opts...)
}

func outputAlgorithm(name string) compression.Algorithm {
	switch name {
	case "zstd":
		return compression.Zstd
	case "lz4":
		return compression.LZ4
	default:
		return compression.Gzip
	}
}
