package partition

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedFile is returned for partition files that cannot be parsed.
var ErrMalformedFile = errors.New("partition: malformed file")

// ClustersSuffix names the clusters side file of overlapping methods.
const ClustersSuffix = ".clusters"

// MetisSuffix names the METIS-style text copy of a partition.
const MetisSuffix = ".metis"

// WriteBinary encodes p as uint32 n followed by n int32 shard ids.
func WriteBinary(w io.Writer, p Partition) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(p))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, []int32(p))
}

// ReadBinary decodes the binary partition layout.
func ReadBinary(r io.Reader) (Partition, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedFile, err)
	}
	p := make(Partition, n)
	if err := binary.Read(r, binary.LittleEndian, []int32(p)); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrMalformedFile, err)
	}
	return p, nil
}

// WriteMetis writes one shard id per line.
func WriteMetis(w io.Writer, p Partition) error {
	bw := bufio.NewWriter(w)
	for _, b := range p {
		bw.WriteString(strconv.Itoa(int(b)))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadMetis parses one shard id per line. Blank lines are skipped.
func ReadMetis(r io.Reader) (Partition, error) {
	var p Partition
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		b, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedFile, line, err)
		}
		p = append(p, int32(b))
	}
	return p, sc.Err()
}

// WriteClusters writes the shard count, then one line of member ids per shard.
func WriteClusters(w io.Writer, c Clusters) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(strconv.Itoa(len(c)))
	bw.WriteByte('\n')
	for _, members := range c {
		for i, id := range members {
			if i > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatUint(uint64(id), 10))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadClusters parses the clusters layout.
func ReadClusters(r io.Reader) (Clusters, error) {
	br := bufio.NewReader(r)

	header, err := br.ReadString('\n')
	if err != nil && header == "" {
		return nil, fmt.Errorf("%w: missing shard count", ErrMalformedFile)
	}
	k, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || k < 0 {
		return nil, fmt.Errorf("%w: shard count %q", ErrMalformedFile, strings.TrimSpace(header))
	}

	out := make(Clusters, k)
	for b := range k {
		line, err := br.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			if line == "" {
				return nil, fmt.Errorf("%w: %d of %d shard lines", ErrMalformedFile, b, k)
			}
		}
		fields := strings.Fields(line)
		members := make([]uint32, len(fields))
		for i, f := range fields {
			id, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: shard %d: %v", ErrMalformedFile, b, err)
			}
			members[i] = uint32(id)
		}
		out[b] = members
	}
	return out, nil
}

// WriteFile writes to path through fn.
func WriteFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadAssignment loads a shard assignment from path in any of the supported
// layouts: a clusters file (by suffix), the binary partition, or METIS text.
func ReadAssignment(path string) (Clusters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ClustersSuffix) {
		c, err := ReadClusters(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return c, nil
	}

	var p Partition
	if isBinaryPartition(data) {
		p, err = ReadBinary(bytes.NewReader(data))
	} else {
		p, err = ReadMetis(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	k := p.NumShards()
	if err := p.Validate(k); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return FromPartition(p, k), nil
}

// isBinaryPartition reports whether data is exactly a uint32 count followed
// by that many int32 values.
func isBinaryPartition(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data)
	return uint64(len(data)) == 4+4*uint64(n)
}
