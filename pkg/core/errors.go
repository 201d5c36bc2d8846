package core

import (
	"fmt"
)

// ErrorKind classifies resolution failures.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindParse
	KindNoContainerFound
	KindNoCandidateAboveThreshold
	KindAmbiguousMatch
	KindUnsafeTarget
	KindInvalidBounds
	KindInvalidSpec
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindParse:
		return "parse_error"
	case KindNoContainerFound:
		return "no_container_found"
	case KindNoCandidateAboveThreshold:
		return "no_candidate_above_threshold"
	case KindAmbiguousMatch:
		return "ambiguous_match"
	case KindUnsafeTarget:
		return "unsafe_target"
	case KindInvalidBounds:
		return "invalid_bounds"
	case KindInvalidSpec:
		return "invalid_spec"
	default:
		return "unknown"
	}
}

// ResolveError represents a structured resolution failure.
type ResolveError struct {
	Kind        ErrorKind
	Code        string                 // Machine-readable code: parse_error, ambiguous_match, etc.
	Message     string                 // Human-readable message
	Details     map[string]interface{} // Additional context
	Suggestions []string               // Disambiguation hints for the operator
	Cause       error                  // Underlying error
}

// Error implements the error interface
func (e *ResolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Is matches any ResolveError of the same kind, so errors.Is(err, ErrUnsafeTarget)
// holds for customized copies.
func (e *ResolveError) Is(target error) bool {
	t, ok := target.(*ResolveError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *ResolveError) clone() *ResolveError {
	c := *e
	return &c
}

// WithCause returns a copy of the error with the given cause
func (e *ResolveError) WithCause(cause error) *ResolveError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithMessage returns a copy of the error with a custom message
func (e *ResolveError) WithMessage(msg string) *ResolveError {
	c := e.clone()
	c.Message = msg
	return c
}

// WithMessagef is WithMessage with formatting.
func (e *ResolveError) WithMessagef(format string, args ...interface{}) *ResolveError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ResolveError) WithDetails(details map[string]interface{}) *ResolveError {
	merged := make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	c := e.clone()
	c.Details = merged
	return c
}

// WithSuggestions returns a copy of the error carrying disambiguation hints.
func (e *ResolveError) WithSuggestions(s []string) *ResolveError {
	c := e.clone()
	c.Suggestions = append([]string(nil), s...)
	return c
}

// Predefined errors, one per kind
var (
	ErrParse = &ResolveError{
		Kind:    KindParse,
		Code:    "parse_error",
		Message: "malformed snapshot",
	}
	ErrNoContainerFound = &ResolveError{
		Kind:    KindNoContainerFound,
		Code:    "no_container_found",
		Message: "no container found for anchor",
	}
	ErrNoCandidateAboveThreshold = &ResolveError{
		Kind:    KindNoCandidateAboveThreshold,
		Code:    "no_candidate_above_threshold",
		Message: "no candidate above confidence threshold",
	}
	ErrAmbiguousMatch = &ResolveError{
		Kind:    KindAmbiguousMatch,
		Code:    "ambiguous_match",
		Message: "multiple candidates match equally well",
	}
	ErrUnsafeTarget = &ResolveError{
		Kind:    KindUnsafeTarget,
		Code:    "unsafe_target",
		Message: "target is full-screen or a generic container",
	}
	ErrInvalidBounds = &ResolveError{
		Kind:    KindInvalidBounds,
		Code:    "invalid_bounds",
		Message: "invalid bounds",
	}
	ErrInvalidSpec = &ResolveError{
		Kind:    KindInvalidSpec,
		Code:    "invalid_spec",
		Message: "invalid target specification",
	}
)

// NewResolveError creates a new ResolveError with the given parameters
func NewResolveError(kind ErrorKind, message string) *ResolveError {
	return &ResolveError{
		Kind:    kind,
		Code:    kind.String(),
		Message: message,
	}
}

// KindOf extracts the kind of a ResolveError anywhere in err's chain.
func KindOf(err error) ErrorKind {
	for err != nil {
		if re, ok := err.(*ResolveError); ok {
			return re.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return KindNone
		}
		err = u.Unwrap()
	}
	return KindNone
}
