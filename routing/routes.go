package routing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/shardann/internal/compress"
)

// ErrMalformed is returned when a routes file cannot be parsed.
var ErrMalformed = errors.New("routing: malformed routes file")

// WriteRoutes writes configs as text. Per config: a marker line "R", the
// strategy name, the parameters (possibly empty), a line
// "<num_probes> <num_queries> <routing_time> <routing_cost>" and one line of
// probed shards per query.
func WriteRoutes(w io.Writer, configs []Config) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(configs))

	var line []byte
	for _, c := range configs {
		fmt.Fprintf(bw, "R\n%s\n%s\n", c.Strategy, c.Parameters)

		line = line[:0]
		line = strconv.AppendInt(line, int64(c.NumProbes), 10)
		line = append(line, ' ')
		line = strconv.AppendInt(line, int64(len(c.Probes)), 10)
		line = append(line, ' ')
		line = strconv.AppendFloat(line, c.RoutingTime, 'g', -1, 64)
		line = append(line, ' ')
		line = strconv.AppendFloat(line, c.RoutingCost, 'g', -1, 64)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}

		for _, probes := range c.Probes {
			line = line[:0]
			for i, b := range probes {
				if i > 0 {
					line = append(line, ' ')
				}
				line = strconv.AppendInt(line, int64(b), 10)
			}
			line = append(line, '\n')
			if _, err := bw.Write(line); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// ReadRoutes parses the output of WriteRoutes.
func ReadRoutes(r io.Reader) ([]Config, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)

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
		return nil, fmt.Errorf("%w: bad config count %q", ErrMalformed, header)
	}

	configs := make([]Config, 0, count)
	for range count {
		marker, err := next()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(marker) != "R" {
			return nil, fmt.Errorf("%w: line %d: expected marker R, got %q", ErrMalformed, lineNo, marker)
		}

		var c Config
		if c.Strategy, err = next(); err != nil {
			return nil, err
		}
		if c.Parameters, err = next(); err != nil {
			return nil, err
		}

		line, err := next()
		if err != nil {
			return nil, err
		}
		var nq int
		if _, err := fmt.Sscanf(line, "%d %d %g %g", &c.NumProbes, &nq, &c.RoutingTime, &c.RoutingCost); err != nil || nq < 0 {
			return nil, fmt.Errorf("%w: line %d: bad header %q", ErrMalformed, lineNo, line)
		}

		c.Probes = make([][]int, nq)
		for q := range nq {
			line, err := next()
			if err != nil {
				return nil, err
			}
			fields := strings.Fields(line)
			probes := make([]int, len(fields))
			for i, f := range fields {
				if probes[i], err = strconv.Atoi(f); err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
				}
			}
			c.Probes[q] = probes
		}

		configs = append(configs, c)
	}

	return configs, nil
}

// WriteRoutesFile writes configs to path, compressed when the path ends in
// .zst or .lz4.
func WriteRoutesFile(path string, configs []Config) error {
	return compress.WriteFile(path, func(w io.Writer) error {
		return WriteRoutes(w, configs)
	})
}

// ReadRoutesFile reads a file written by WriteRoutesFile.
func ReadRoutesFile(path string) ([]Config, error) {
	var configs []Config
	err := compress.ReadFile(path, func(r io.Reader) error {
		var err error
		configs, err = ReadRoutes(r)
		return err
	})
	return configs, err
}
