package pointset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Format is the on-disk element type of a point file.
type Format int

const (
	// FormatFloat32 is the `.fbin` layout.
	FormatFloat32 Format = iota
	// FormatUint8 is the `.u8bin` layout.
	FormatUint8
	// FormatInt8 is the `.i8bin` layout.
	FormatInt8
)

// FormatFromPath derives the element type from a file extension.
// Unknown extensions are read as float32.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".u8bin":
		return FormatUint8
	case ".i8bin":
		return FormatInt8
	default:
		return FormatFloat32
	}
}

// ReadHeader returns the point count and dimension stored in a point file.
func ReadHeader(path string) (n, d int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var hdr [2]uint32
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return int(hdr[0]), int(hdr[1]), nil
}

// ReadFile loads a point file, choosing the element type by extension.
func ReadFile(path string) (*PointSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ps, err := Read(bufio.NewReaderSize(f, 1<<20), FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// Read decodes a point set from r.
func Read(r io.Reader, format Format) (*PointSet, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	n, d := int(hdr[0]), int(hdr[1])
	if d == 0 && n > 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrMalformed)
	}

	ps := New(n, d)
	switch format {
	case FormatFloat32:
		if err := binary.Read(r, binary.LittleEndian, ps.data); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrMalformed, err)
		}
	case FormatUint8, FormatInt8:
		buf := make([]byte, n*d)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrMalformed, err)
		}
		for i, b := range buf {
			if format == FormatInt8 {
				ps.data[i] = float32(int8(b))
			} else {
				ps.data[i] = float32(b)
			}
		}
	default:
		return nil, fmt.Errorf("pointset: unknown format %d", format)
	}
	return ps, nil
}

// WriteFile stores p as a float32 point file (the centroid file layout).
func WriteFile(path string, p *PointSet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if err := Write(w, p); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write encodes p as uint32 n, uint32 d and n*d float32 values.
func Write(w io.Writer, p *PointSet) error {
	if p.n > math.MaxUint32 || p.d > math.MaxUint32 {
		return fmt.Errorf("pointset: %d x %d exceeds uint32 header", p.n, p.d)
	}
	hdr := [2]uint32{uint32(p.n), uint32(p.d)}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, p.data)
}
