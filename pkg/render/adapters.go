package render

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ajitpratap0/trellis/pkg/errors"
)

// pngMagic is the 8-byte PNG file signature.
var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// RegisterBuiltins registers the built-in adapters on reg in priority
// order: specific byte and file formats first, generic markup last.
func RegisterBuiltins(reg *Registry) error {
	adapters := []Adapter{
		&PNGBytesAdapter{},
		&ImageFileAdapter{},
		&SVGAdapter{},
		&HTMLAdapter{},
	}
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// PNGBytesAdapter renders panels held as encoded PNG bytes.
type PNGBytesAdapter struct{}

func (a *PNGBytesAdapter) Name() string { return "png-bytes" }

func (a *PNGBytesAdapter) Format() Format { return FormatPNG }

func (a *PNGBytesAdapter) Recognize(value interface{}) bool {
	b, ok := value.([]byte)
	return ok && len(b) > len(pngMagic) && bytes.HasPrefix(b, pngMagic)
}

func (a *PNGBytesAdapter) Render(_ context.Context, value interface{}, slot OutputSlot) (*Artifact, error) {
	b := value.([]byte)
	path := filepath.Join(slot.Dir, slot.Key+"."+FormatPNG.Ext())
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRender, "failed to write png artifact")
	}
	return &Artifact{Key: slot.Key, Row: slot.Row, Format: FormatPNG, Path: path}, nil
}

// ImageFileAdapter renders panels held as a path to an already-encoded
// raster image file, copying it into the panel directory.
type ImageFileAdapter struct{}

func (a *ImageFileAdapter) Name() string { return "image-file" }

func (a *ImageFileAdapter) Format() Format { return FormatPNG }

func (a *ImageFileAdapter) Recognize(value interface{}) bool {
	s, ok := value.(string)
	if !ok || !strings.HasSuffix(strings.ToLower(s), ".png") {
		return false
	}
	info, err := os.Stat(s)
	return err == nil && info.Mode().IsRegular()
}

func (a *ImageFileAdapter) Render(_ context.Context, value interface{}, slot OutputSlot) (*Artifact, error) {
	src := value.(string)
	dst := filepath.Join(slot.Dir, slot.Key+"."+FormatPNG.Ext())

	in, err := os.Open(src) //nolint:gosec // G304: caller supplies the panel path
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRender, "failed to open source image")
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRender, "failed to create image artifact")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRender, "failed to copy image artifact")
	}
	return &Artifact{Key: slot.Key, Row: slot.Row, Format: FormatPNG, Path: dst}, nil
}

// SVGAdapter renders panels held as SVG markup strings.
type SVGAdapter struct{}

func (a *SVGAdapter) Name() string { return "svg-markup" }

func (a *SVGAdapter) Format() Format { return FormatSVG }

func (a *SVGAdapter) Recognize(value interface{}) bool {
	s, ok := value.(string)
	return ok && strings.HasPrefix(strings.TrimSpace(s), "<svg")
}

func (a *SVGAdapter) Render(_ context.Context, value interface{}, slot OutputSlot) (*Artifact, error) {
	s := value.(string)
	path := filepath.Join(slot.Dir, slot.Key+"."+FormatSVG.Ext())
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRender, "failed to write svg artifact")
	}
	return &Artifact{Key: slot.Key, Row: slot.Row, Format: FormatSVG, Path: path}, nil
}

// HTMLAdapter renders panels held as interactive HTML fragments. The
// fragment is kept inline in the metadata records rather than written
// to a file.
type HTMLAdapter struct{}

func (a *HTMLAdapter) Name() string { return "html-markup" }

func (a *HTMLAdapter) Format() Format { return FormatHTML }

func (a *HTMLAdapter) Recognize(value interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "<") {
		return false
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(trimmed), body)
	if err != nil {
		return false
	}
	return hasElementNode(nodes)
}

func (a *HTMLAdapter) Render(_ context.Context, value interface{}, slot OutputSlot) (*Artifact, error) {
	s := strings.TrimSpace(value.(string))
	if s == "" {
		return nil, errors.New(errors.ErrorTypeRender, "empty html fragment")
	}
	return &Artifact{Key: slot.Key, Row: slot.Row, Format: FormatHTML, Markup: s}, nil
}

func hasElementNode(nodes []*html.Node) bool {
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return true
		}
	}
	return false
}
