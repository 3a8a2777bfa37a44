// Package compress wraps result and route files in optional LZ4 or ZSTD
// streams chosen by file extension.
package compress

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None writes the stream as is.
	None Type = 0
	// LZ4 uses the LZ4 frame format (fast, larger files).
	LZ4 Type = 1
	// ZSTD uses the zstd frame format (better ratio).
	ZSTD Type = 2
)

// String returns the extension-style name.
func (t Type) String() string {
	switch t {
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zst"
	default:
		return "none"
	}
}

// FromPath picks the algorithm from the path's extension.
func FromPath(path string) Type {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lz4":
		return LZ4
	case ".zst", ".zstd":
		return ZSTD
	default:
		return None
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w. Closing the returned writer flushes the frame but
// leaves w open.
func NewWriter(w io.Writer, t Type) (io.WriteCloser, error) {
	switch t {
	case None:
		return nopWriteCloser{w}, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case ZSTD:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	default:
		return nil, fmt.Errorf("compress: unknown type %d", t)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewReader wraps r. Closing the returned reader releases decoder state
// but leaves r open.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	switch t {
	case None:
		return io.NopCloser(r), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case ZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	default:
		return nil, fmt.Errorf("compress: unknown type %d", t)
	}
}

// WriteFile creates path and streams fn's output through the compressor
// implied by its extension.
func WriteFile(path string, fn func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	cw, err := NewWriter(bw, FromPath(path))
	if err != nil {
		return err
	}
	if err := fn(cw); err != nil {
		_ = cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadFile opens path and passes the decompressed stream to fn.
func ReadFile(path string, fn func(r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cr, err := NewReader(bufio.NewReaderSize(f, 1<<20), FromPath(path))
	if err != nil {
		return err
	}
	defer cr.Close()

	return fn(cr)
}
