// Package compression detects and undoes the compression of resolved source
// content, and compresses dump output on request.
//
// Supported algorithms are recognized by their frame magic:
//   - Gzip: 1f 8b
//   - Zstd: 28 b5 2f fd
//   - LZ4 (frame format): 04 22 4d 18
//
// Basic usage:
//
//	alg := compression.Detect(content)
//	if alg != compression.None {
//	    content, err = compression.Decompress(alg, content, maxBytes)
//	}
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
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
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ParseAlgorithm parses a user supplied algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", None:
		return None, nil
	case Gzip, LZ4, Zstd:
		return Algorithm(name), nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Detect returns the algorithm whose magic prefixes data, or None.
func Detect(data []byte) Algorithm {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return Gzip
	case bytes.HasPrefix(data, zstdMagic):
		return Zstd
	case bytes.HasPrefix(data, lz4Magic):
		return LZ4
	default:
		return None
	}
}

// Decompress inflates data. A positive maxBytes bounds the output size;
// exceeding it is an error.
func Decompress(alg Algorithm, data []byte, maxBytes int64) ([]byte, error) {
	r, closer, err := newReader(alg, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer closer()

	var src io.Reader = r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, fmt.Errorf("%s decompression failed: %w", alg, err)
	}
	if maxBytes > 0 && int64(buf.Len()) > maxBytes {
		return nil, fmt.Errorf("decompressed content exceeds %d bytes", maxBytes)
	}
	return buf.Bytes(), nil
}

// Compress compresses data with alg at the library default level.
func Compress(alg Algorithm, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(alg, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%s compression failed: %w", alg, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s compression failed: %w", alg, err)
	}
	return buf.Bytes(), nil
}

// NewWriter wraps dst in a compressing writer. Close flushes the frame but
// does not close dst.
func NewWriter(alg Algorithm, dst io.Writer) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriter(dst), nil
	case Zstd:
		return zstd.NewWriter(dst)
	case LZ4:
		return lz4.NewWriter(dst), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

func newReader(alg Algorithm, src io.Reader) (io.Reader, func(), error) {
	switch alg {
	case None:
		return src, func() {}, nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	case Zstd:
		r, err := zstd.NewReader(src)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return r, r.Close, nil
	case LZ4:
		return lz4.NewReader(src), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
