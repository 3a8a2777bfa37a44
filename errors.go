package shardann

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when the neighbour count is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidShardCount is returned when the requested shard count is not positive.
	ErrInvalidShardCount = errors.New("shard count must be positive")

	// ErrUnknownBalance is returned for a balance mode other than default or strong.
	ErrUnknownBalance = errors.New("unknown balance mode")
)

// StageError reports which pipeline stage failed.
//
// The wrapped error can be accessed via errors.Unwrap.
type StageError struct {
	Stage string
	Path  string
	cause error
}

func (e *StageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.cause)
}

func (e *StageError) Unwrap() error { return e.cause }

func stageError(stage, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Path: path, cause: err}
}
