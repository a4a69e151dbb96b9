package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/compression"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/logger"
)

// Writer serializes documents. The zero value is not usable; construct
// with NewWriter.
type Writer struct {
	codec  *compression.Codec
	pretty bool
	logger *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithPretty enables indented output.
func WithPretty() WriterOption {
	return func(w *Writer) { w.pretty = true }
}

// WithCompression compresses the serialized document and appends the
// codec's extension to the file name.
func WithCompression(algorithm compression.Algorithm) WriterOption {
	return func(w *Writer) {
		codec, err := compression.NewCodec(algorithm)
		if err == nil {
			w.codec = codec
		}
	}
}

// NewWriter builds a Writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{logger: logger.Get().Named("spec")}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Marshal returns the document's canonical bytes. Serialization is
// deterministic: struct fields emit in declaration order and map keys
// sort lexically, so identical documents always produce identical
// bytes.
func (w *Writer) Marshal(doc *Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	var (
		data []byte
		err  error
	)
	if w.pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization,
			fmt.Sprintf("failed to serialize collection %q", doc.Name))
	}
	return data, nil
}

// WriteFile writes the document under the collection root, atomically.
// The bytes land in a temporary file in the same directory and are
// renamed into place, so a crash mid-write never leaves a truncated
// specification where a reader could find it.
func (w *Writer) WriteFile(doc *Document, root string) (string, error) {
	data, err := w.Marshal(doc)
	if err != nil {
		return "", err
	}

	name := FileName
	if w.codec != nil && w.codec.Algorithm() != compression.None {
		data, err = w.codec.Compress(data)
		if err != nil {
			return "", err
		}
		name += w.codec.Algorithm().Extension()
	}
	path := filepath.Join(root, name)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to create collection root %s", root))
	}

	tmp, err := os.CreateTemp(root, ".spec-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary spec file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write spec file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to close spec file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to move spec file into place at %s", path))
	}

	w.logger.Info("specification written",
		zap.String("collection", doc.Name),
		zap.String("path", path),
		zap.Int("rows", doc.RowCount),
		zap.Int("bytes", len(data)))
	return path, nil
}

// Load reads a specification file, decompressing by extension, and
// validates it.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound,
				fmt.Sprintf("specification %s does not exist", path))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to read specification %s", path))
	}

	if alg, ok := algorithmForPath(path); ok {
		codec, err := compression.NewCodec(alg)
		if err != nil {
			return nil, err
		}
		data, err = codec.Decompress(data)
		if err != nil {
			return nil, err
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSerialization,
			fmt.Sprintf("failed to parse specification %s", path))
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Find locates the specification under a collection root, trying the
// uncompressed name first and then each codec extension.
func Find(root string) (string, error) {
	candidates := []string{FileName}
	for _, alg := range []compression.Algorithm{
		compression.Gzip,
		compression.Zstd,
		compression.LZ4,
	} {
		candidates = append(candidates, FileName+alg.Extension())
	}
	for _, name := range candidates {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeNotFound, "no specification found under %s", root)
}

func algorithmForPath(path string) (compression.Algorithm, bool) {
	for _, alg := range []compression.Algorithm{
		compression.Gzip,
		compression.Zstd,
		compression.LZ4,
	} {
		if strings.HasSuffix(path, alg.Extension()) {
			return alg, true
		}
	}
	return compression.None, false
}
