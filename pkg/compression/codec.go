// Package compression provides the codecs used to compress per-row
// metadata files and upload payloads. Algorithms trade speed against
// ratio: LZ4 is fastest, Zstd compresses best, Gzip is the most widely
// supported default.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
)

// Extension returns the filename suffix for the algorithm, including
// the leading dot, or empty for None.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

// Codec compresses and decompresses byte payloads.
type Codec struct {
	algorithm Algorithm
}

// NewCodec creates a codec for the given algorithm.
func NewCodec(algorithm Algorithm) (*Codec, error) {
	switch algorithm {
	case None, Gzip, Zstd, LZ4:
		return &Codec{algorithm: algorithm}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", algorithm)
	}
}

// Algorithm returns the codec's algorithm.
func (c *Codec) Algorithm() Algorithm { return c.algorithm }

// Compress returns the compressed form of data.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	if c.algorithm == None {
		return data, nil
	}

	var buf bytes.Buffer
	w, err := c.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress returns the original form of compressed data.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	if c.algorithm == None {
		return data, nil
	}

	r, err := c.newReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

// NewWriter wraps w in a compressing writer. The caller must Close it
// to flush trailing frames.
func (c *Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c.algorithm {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return zw, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", c.algorithm)
	}
}

func (c *Codec) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c.algorithm {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return io.NopCloser(zr.IOReadCloser()), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", c.algorithm)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
