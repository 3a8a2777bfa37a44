package shardsearch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/shardann/internal/compress"
)

// ErrMalformed is returned when a search file cannot be parsed.
var ErrMalformed = errors.New("shardsearch: malformed search file")

// Result holds the sweep output for one search effort.
type Result struct {
	Effort int

	// Neighbors[shard][query] are the global ids of the hits.
	Neighbors [][][]uint32

	// Times[shard][query] is the attributed per-query time in seconds.
	Times [][]float64
}

// NewResult allocates empty hit lists and zero times.
func NewResult(effort, numShards, numQueries int) *Result {
	r := &Result{
		Effort:    effort,
		Neighbors: make([][][]uint32, numShards),
		Times:     make([][]float64, numShards),
	}
	for b := range numShards {
		r.Neighbors[b] = make([][]uint32, numQueries)
		r.Times[b] = make([]float64, numQueries)
	}
	return r
}

// NumShards returns the number of shards covered.
func (r *Result) NumShards() int { return len(r.Neighbors) }

// NumQueries returns the number of queries covered.
func (r *Result) NumQueries() int {
	if len(r.Neighbors) == 0 {
		return 0
	}
	return len(r.Neighbors[0])
}

// TotalHits counts hit ids over all shards and queries.
func (r *Result) TotalHits() int {
	total := 0
	for _, shard := range r.Neighbors {
		for _, hits := range shard {
			total += len(hits)
		}
	}
	return total
}

// WriteResults writes results in the line-oriented search file format.
func WriteResults(w io.Writer, results []*Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(results))

	var line []byte
	for _, r := range results {
		numShards, numQueries := r.NumShards(), r.NumQueries()
		fmt.Fprintf(bw, "S\n%d %d %d\n", r.Effort, numShards, numQueries)

		for b := range numShards {
			for q := range numQueries {
				line = line[:0]
				for i, id := range r.Neighbors[b][q] {
					if i > 0 {
						line = append(line, ' ')
					}
					line = strconv.AppendUint(line, uint64(id), 10)
				}
				line = append(line, '\n')
				if _, err := bw.Write(line); err != nil {
					return err
				}
			}
		}

		for b := range numShards {
			line = line[:0]
			for i, t := range r.Times[b] {
				if i > 0 {
					line = append(line, ' ')
				}
				line = strconv.AppendFloat(line, t, 'g', -1, 64)
			}
			line = append(line, '\n')
			if _, err := bw.Write(line); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// ReadResults parses the output of WriteResults. Empty hit lines yield nil
// hit lists.
func ReadResults(r io.Reader) ([]*Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 256<<20)

	lineNo := 0
	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: unexpected end of file after line %d", ErrMalformed, lineNo)
		}
		lineNo++
		return sc.Text(), nil
	}

	header, err := next()
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("%w: bad result count %q", ErrMalformed, header)
	}

	results := make([]*Result, 0, count)
	for range count {
		marker, err := next()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(marker) != "S" {
			return nil, fmt.Errorf("%w: line %d: expected marker S, got %q", ErrMalformed, lineNo, marker)
		}

		line, err := next()
		if err != nil {
			return nil, err
		}
		var effort, numShards, numQueries int
		if _, err := fmt.Sscanf(line, "%d %d %d", &effort, &numShards, &numQueries); err != nil || numShards < 0 || numQueries < 0 {
			return nil, fmt.Errorf("%w: line %d: bad header %q", ErrMalformed, lineNo, line)
		}

		res := NewResult(effort, numShards, numQueries)
		for b := range numShards {
			for q := range numQueries {
				line, err := next()
				if err != nil {
					return nil, err
				}
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				hits := make([]uint32, len(fields))
				for i, f := range fields {
					v, err := strconv.ParseUint(f, 10, 32)
					if err != nil {
						return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
					}
					hits[i] = uint32(v)
				}
				res.Neighbors[b][q] = hits
			}
		}

		for b := range numShards {
			line, err := next()
			if err != nil {
				return nil, err
			}
			fields := strings.Fields(line)
			if len(fields) != numQueries {
				return nil, fmt.Errorf("%w: line %d: %d times for %d queries", ErrMalformed, lineNo, len(fields), numQueries)
			}
			for q, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
				}
				res.Times[b][q] = v
			}
		}

		results = append(results, res)
	}

	return results, nil
}

// WriteResultsFile writes results to path, compressed when the path ends
// in .zst or .lz4.
func WriteResultsFile(path string, results []*Result) error {
	return compress.WriteFile(path, func(w io.Writer) error {
		return WriteResults(w, results)
	})
}

// ReadResultsFile reads a file written by WriteResultsFile.
func ReadResultsFile(path string) ([]*Result, error) {
	var results []*Result
	err := compress.ReadFile(path, func(r io.Reader) error {
		var err error
		results, err = ReadResults(r)
		return err
	})
	return results, err
}
