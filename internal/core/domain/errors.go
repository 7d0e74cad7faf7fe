package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRateLimitTimeout  = errors.New("rate limit timeout")
	ErrDocumentOrphaned  = errors.New("document orphaned")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ExtractionError reports a failed text extraction. Extraction failures are
// treated as potentially transient (a flaky read on the backing store looks
// identical to a corrupt file), so they stay retryable.
type ExtractionError struct {
	MimeType string
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.MimeType, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.MimeType, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func NewExtractionError(mimeType, reason string, err error) *ExtractionError {
	return &ExtractionError{MimeType: mimeType, Reason: reason, Err: err}
}

// ClassifierErrorKind categorizes classifier call failures.
type ClassifierErrorKind string

const (
	ClassifierNetwork           ClassifierErrorKind = "network"
	ClassifierTimeout           ClassifierErrorKind = "timeout"
	ClassifierAuthentication    ClassifierErrorKind = "authentication"
	ClassifierMalformedResponse ClassifierErrorKind = "malformedResponse"
)

// ClassifierError is the strict Err arm of a classifier call result.
type ClassifierError struct {
	Kind    ClassifierErrorKind
	Message string
	Err     error
}

func (e *ClassifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("classifier %s: %s", e.Kind, e.Message)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

func NewClassifierError(kind ClassifierErrorKind, message string, err error) *ClassifierError {
	return &ClassifierError{Kind: kind, Message: message, Err: err}
}

// AsClassifierError unwraps err down to a ClassifierError if one is present.
func AsClassifierError(err error) (*ClassifierError, bool) {
	var ce *ClassifierError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Retryable reports whether another attempt at the same operation could
// succeed. Authentication failures and orphaned documents never benefit from
// a retry; everything else in the taxonomy does.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDocumentOrphaned) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidTransition) {
		return false
	}
	if ce, ok := AsClassifierError(err); ok {
		return ce.Kind != ClassifierAuthentication
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return true
	}
	if errors.Is(err, ErrRateLimitTimeout) || errors.Is(err, ErrTemporary) {
		return true
	}
	return true
}

// Fatal reports whether err must abort a whole batch run regardless of the
// continue-on-error setting.
func Fatal(err error) bool {
	ce, ok := AsClassifierError(err)
	return ok && ce.Kind == ClassifierAuthentication
}
