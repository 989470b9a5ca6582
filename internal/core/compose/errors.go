// Package compose extracts a service's runtime shape (container port,
// environment) from a Docker Compose specification, for use as task
// definition parameters. This is part of the Functional Core - all functions
// are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyInput is returned for an empty compose spec.
	ErrEmptyInput = errors.New("compose spec is empty")

	// ErrInvalidYAML is returned for YAML the loader rejects.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrNoServices is returned when the spec defines no services.
	ErrNoServices = errors.New("compose spec must define at least one service")

	// ErrServiceNotFound is returned when the named service is absent.
	ErrServiceNotFound = errors.New("service not found in compose spec")

	// ErrAmbiguousService is returned when no service is named and the spec
	// defines more than one.
	ErrAmbiguousService = errors.New("compose spec defines multiple services; one must be named")

	// ErrInvalidPort is returned for an unusable port configuration.
	ErrInvalidPort = errors.New("invalid port configuration")
)

// ParseError wraps errors with context about where extraction failed.
type ParseError struct {
	Field   string // e.g., "services.web.ports[0]"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
