package nadir

import (
	"errors"
	"fmt"
)

// Registration errors. These are reported synchronously and the caller may
// retry with corrected input.
var (
	// ErrDuplicateIdentifier indicates an option with the same identifier is
	// already registered.
	ErrDuplicateIdentifier = errors.New("duplicate option identifier")

	// ErrInvalidIdentifier indicates an empty option identifier.
	ErrInvalidIdentifier = errors.New("invalid option identifier")

	// ErrInvalidDomain indicates an empty or malformed set of sweep values.
	ErrInvalidDomain = errors.New("invalid parameter domain")

	// ErrUnsupportedParameterType indicates a parameter declaration that has
	// no default sweep or no persisted encoding: an unknown kind, missing or
	// repeated labels, or a name or label containing a separator.
	ErrUnsupportedParameterType = errors.New("unsupported parameter type")

	// ErrInvalidRepeats indicates a non-positive repeat count.
	ErrInvalidRepeats = errors.New("repeats must be positive")
)

// Sweep errors. A sweep that fails with one of these yields no usable table.
var (
	// ErrExperimentFailed indicates an experiment or setup procedure returned
	// an error or panicked.
	ErrExperimentFailed = errors.New("experiment failed")

	// ErrSinkUnavailable indicates the output sink could not be opened or
	// written.
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrSweepAborted indicates the host cancelled the sweep between cells.
	ErrSweepAborted = errors.New("sweep aborted")
)

// Selection errors. Callers may fall back to a default option.
var (
	// ErrEmptyTable indicates the table holds no measurements.
	ErrEmptyTable = errors.New("measurement table is empty")

	// ErrUnknownOption indicates the identifier is absent from the table.
	ErrUnknownOption = errors.New("unknown option")

	// ErrQueryMismatch indicates the query tuple does not fit the table schema.
	ErrQueryMismatch = errors.New("query does not match table schema")
)

// Table errors
var (
	// ErrTableSealed indicates an append to a table whose sweep phase is over.
	ErrTableSealed = errors.New("measurement table is sealed")

	// ErrDuplicateMeasurement indicates a second row for the same option
	// and tuple.
	ErrDuplicateMeasurement = errors.New("duplicate measurement")

	// ErrIncompleteTable indicates a table that does not cover its domain
	// exactly once per option.
	ErrIncompleteTable = errors.New("measurement table is incomplete")
)

// RegistrationError wraps a registration failure.
type RegistrationError struct {
	Kind error
	Msg  string
}

func (e *RegistrationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *RegistrationError) Unwrap() error { return e.Kind }

func registrationf(kind error, format string, args ...any) error {
	return &RegistrationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// SweepError reports the cell at which a sweep stopped.
// Option and Params are empty when the failure is not tied to a cell.
type SweepError struct {
	Kind   error
	Option string
	Params Params
	Err    error
}

func (e *SweepError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Option != "" {
		msg = fmt.Sprintf("%s: option %q at %s", msg, e.Option, e.Params)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SweepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SelectionError wraps a selection failure.
type SelectionError struct {
	Kind error
	Msg  string
}

func (e *SelectionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *SelectionError) Unwrap() error { return e.Kind }

func selectionf(kind error, format string, args ...any) error {
	return &SelectionError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
