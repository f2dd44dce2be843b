// Package errs defines the error categories surfaced by cardest.
package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMalformedPlan marks plan documents that do not have the expected shape.
	ErrMalformedPlan = errors.New("malformed plan")
	// ErrInvalidConfiguration marks an unknown optimizer configuration selector.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrExecution marks failures raised while executing a query against the database.
	ErrExecution = errors.New("execution failed")
	// ErrEmptyInput is returned when statistics are requested over an empty collection.
	ErrEmptyInput = errors.New("empty input")
	// ErrNotFound is returned for missing query files, directories and stored runs.
	ErrNotFound = errors.New("not found")
)

// MalformedPlanError reports a plan node that is neither a valid leaf nor a valid internal node.
type MalformedPlanError struct {
	// Path is the dotted child path of the offending node ("0", "0.1", ...).
	Path   string
	Reason string
}

func (e *MalformedPlanError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed plan: %s", e.Reason)
	}
	return fmt.Sprintf("malformed plan at node %s: %s", e.Path, e.Reason)
}

// Is lets errors.Is match the ErrMalformedPlan category.
func (e *MalformedPlanError) Is(target error) bool { return target == ErrMalformedPlan }

// Malformed builds a MalformedPlanError.
func Malformed(path, format string, args ...any) error {
	return &MalformedPlanError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// InvalidConfigurationError reports a configuration selector outside the accepted set.
type InvalidConfigurationError struct {
	Value    string
	Accepted []string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q (expected one of %v)", e.Value, e.Accepted)
}

func (e *InvalidConfigurationError) Is(target error) bool { return target == ErrInvalidConfiguration }

// ExecutionError wraps an I/O or database failure with the query that triggered it.
type ExecutionError struct {
	QueryID string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query %s: %v", e.QueryID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }
