// Package apperr defines the error taxonomy shared by the pipelines and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindProvider      Kind = "provider"
	KindStore         Kind = "store"
	KindDocument      Kind = "document"
)

// Provider failure reasons.
const (
	ReasonAuth        = "auth"
	ReasonRateLimit   = "rate_limit"
	ReasonTimeout     = "timeout"
	ReasonUnavailable = "unavailable"
	ReasonBadRequest  = "bad_request"
)

// Document failure reasons.
const (
	ReasonNotFound = "not_found"
	ReasonCorrupt  = "corrupt"
)

// Error is the concrete error type for every classified failure.
type Error struct {
	Kind       Kind
	Reason     string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "unknown error"
	}
	detail := e.Message
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	} else if e.Err != nil {
		detail = detail + ": " + e.Err.Error()
	}
	switch e.Kind {
	case KindStore:
		return fmt.Sprintf("vector store error (%s): %s", e.Op, detail)
	case KindProvider:
		if e.StatusCode > 0 {
			return fmt.Sprintf("model provider error (%s, status=%d): %s", e.Reason, e.StatusCode, detail)
		}
		return fmt.Sprintf("model provider error (%s): %s", e.Reason, detail)
	case KindConfiguration:
		return "configuration error: " + detail
	case KindDocument:
		return fmt.Sprintf("document error (%s): %s", e.Reason, detail)
	default:
		return detail
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation returns a client-side validation error.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Configuration returns a startup configuration error.
func Configuration(msg string) error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// Store wraps a vector store failure for operation op.
func Store(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

// Storef builds a vector store failure with a formatted message.
func Storef(op, format string, args ...any) error {
	return &Error{Kind: KindStore, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Provider wraps a provider failure with the given reason and HTTP status (0 when unknown).
func Provider(reason string, status int, msg string, err error) error {
	return &Error{Kind: KindProvider, Reason: reason, StatusCode: status, Message: msg, Err: err}
}

// Document wraps a missing or unreadable source document.
func Document(reason, msg string, err error) error {
	return &Error{Kind: KindDocument, Reason: reason, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether a provider error may succeed on a later attempt.
// Auth and bad-request failures never do.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindProvider {
		return false
	}
	switch e.Reason {
	case ReasonRateLimit, ReasonTimeout, ReasonUnavailable:
		return true
	default:
		return false
	}
}
