// Package core provides the main Organizer client and memory organization functionality.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentdb/organizer-go/pkg/similarity"
	"github.com/agentdb/organizer-go/pkg/storage"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidArgument indicates that a caller-supplied argument is invalid.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrBusy indicates that an agent's lock could not be acquired in time.
	ErrBusy = errors.New("agent busy")

	// ErrCancelled indicates that the operation was cancelled by its context.
	ErrCancelled = errors.New("operation cancelled")

	// ErrInternal indicates an internal failure such as a storage error.
	ErrInternal = errors.New("internal error")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error codes for binding layers that cannot carry Go error values.
const (
	CodeOK              = 0
	CodeInvalidArgument = 1
	CodeNotFound        = 2
	CodeBusy            = 3
	CodeCancelled       = 4
	CodeInternal        = 5
)

// OrganizerError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &OrganizerError{
//	    Op:  "EvaluateImportance",
//	    Err: ErrNotFound,
//	}
//	// Error() returns: "organizer: EvaluateImportance: memory not found"
type OrganizerError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "organizer: <Op>: <Err>"
func (e *OrganizerError) Error() string {
	return fmt.Sprintf("organizer: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with OrganizerError.
func (e *OrganizerError) Unwrap() error {
	return e.Err
}

// NewOrganizerError creates a new OrganizerError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewOrganizerError("ClusterMemories", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "AddMemory", "ClusterMemories")
//   - err: The underlying error to wrap
//
// Returns an OrganizerError, or nil if err is nil.
func NewOrganizerError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OrganizerError{
		Op:  op,
		Err: err,
	}
}

// wrapError classifies component errors into the package taxonomy and
// attaches operation context. Errors already carrying a taxonomy sentinel
// pass through with context only.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBusy),
		errors.Is(err, ErrCancelled),
		errors.Is(err, ErrInternal),
		errors.Is(err, ErrInvalidConfig):
		// Already classified.
	case errors.Is(err, storage.ErrNotFound):
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, similarity.ErrDimensionMismatch):
		err = fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		err = fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return &OrganizerError{Op: op, Err: err}
}

// ErrorCode maps an error to a small integer for binding layers.
//
// Codes:
//   - 0: no error
//   - 1: invalid argument
//   - 2: not found
//   - 3: busy (lock acquisition timed out)
//   - 4: cancelled
//   - 5: internal error
//
// Unclassified errors map to CodeInternal.
func ErrorCode(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidConfig):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	default:
		return CodeInternal
	}
}
