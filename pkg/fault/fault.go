// Package fault defines the typed error taxonomy shared across the
// extraction and comparison pipeline. Every user-facing failure carries a
// machine-readable category plus an origin so callers can decide whether to
// retry, fix their input, or treat the failure as an expected external one.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies what went wrong.
type Category string

const (
	Connection     Category = "connection"
	Authentication Category = "authentication"
	Validation     Category = "validation"
	Extraction     Category = "extraction"
	Comparison     Category = "comparison"
	Timeout        Category = "timeout"
	CircuitOpen    Category = "circuit_open"
)

// Origin assigns blame: our infrastructure, the target site, or the
// caller's configuration. A target site's broken JavaScript must never be
// reported as an infrastructure failure.
type Origin string

const (
	Infrastructure Origin = "infrastructure"
	Target         Origin = "target"
	Configuration  Origin = "configuration"
)

// Error is the pipeline's typed error. It wraps an optional cause and
// participates in errors.Is/errors.As chains.
type Error struct {
	Category Category
	Origin   Origin
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error with a formatted message.
func New(c Category, o Origin, format string, args ...any) *Error {
	return &Error{Category: c, Origin: o, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a typed error around a cause. A nil cause yields the same
// result as New.
func Wrap(c Category, o Origin, err error, format string, args ...any) *Error {
	return &Error{Category: c, Origin: o, Message: fmt.Sprintf(format, args...), Err: err}
}

// CategoryOf reports the category of err, unwrapping as needed. Deadline and
// cancellation errors from context map to Timeout; everything else untyped
// reports the empty category.
func CategoryOf(err error) Category {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}
	return ""
}

// OriginOf reports the origin of err, or the empty origin for untyped errors.
func OriginOf(err error) Origin {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Origin
	}
	return ""
}

// Is reports whether err carries the given category.
func Is(err error, c Category) bool {
	return CategoryOf(err) == c
}

// Both combines the failures of two extraction sides into one error naming
// both causes. Used when neither side produced a usable result.
func Both(figmaErr, webErr error) error {
	return &Error{
		Category: Extraction,
		Origin:   Infrastructure,
		Message:  fmt.Sprintf("both extractions failed: figma: %v; web: %v", figmaErr, webErr),
		Err:      errors.Join(figmaErr, webErr),
	}
}
