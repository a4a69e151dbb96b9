// Package render provides the panel adapter pipeline: it detects the
// concrete figure type held in a table's panel column, dispatches to a
// registered renderer, and executes the batch across a worker pool,
// producing stable on-disk artifacts or inline markup per row.
package render

import (
	"context"
)

// Format identifies the output produced by an adapter. A collection's
// format is fixed by the first successfully rendered panel; raster and
// interactive-markup panels never mix within one collection.
type Format string

const (
	// FormatPNG is a raster image file
	FormatPNG Format = "png"
	// FormatSVG is a vector markup file
	FormatSVG Format = "svg"
	// FormatHTML is an interactive markup fragment
	FormatHTML Format = "html"
)

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string { return string(f) }

// Markup reports whether the format is markup rather than raster.
func (f Format) Markup() bool { return f == FormatSVG || f == FormatHTML }

// OutputSlot tells an adapter where one panel's artifact belongs.
type OutputSlot struct {
	// Key is the row's stable key; artifact filenames are {Key}.{ext}
	Key string
	// Row is the 0-based row index, used in error reporting
	Row int
	// Dir is the absolute panel directory for file-producing adapters
	Dir string
}

// Artifact describes one rendered panel.
type Artifact struct {
	Key    string
	Row    int
	Format Format
	// Path is the written file path for file-backed artifacts
	Path string
	// Markup holds the fragment for inline-markup artifacts
	Markup string
	// Skipped marks an artifact reused from a previous run
	Skipped bool
}

// Inline reports whether the artifact is an inline markup fragment
// rather than a file.
func (a *Artifact) Inline() bool { return a.Path == "" && a.Markup != "" }

// Adapter renders one concrete figure type. Recognizers are tried in
// registration priority order until one claims the value.
type Adapter interface {
	// Name identifies the adapter in logs and failure reasons
	Name() string
	// Format returns the output format the adapter produces
	Format() Format
	// Recognize reports whether the adapter claims the panel value
	Recognize(value interface{}) bool
	// Render produces the artifact for a claimed value
	Render(ctx context.Context, value interface{}, slot OutputSlot) (*Artifact, error)
}

// PanelState tracks one panel through the pipeline.
type PanelState string

const (
	StatePending   PanelState = "pending"
	StateDetecting PanelState = "detecting"
	StateRendering PanelState = "rendering"
	StateWritten   PanelState = "written"
	StateFailed    PanelState = "failed"
)
