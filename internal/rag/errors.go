// Package rag holds the error taxonomy shared by every stage of the
// ingestion and query pipelines.
package rag

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; the boundary layer maps them to
// transport status codes.
var (
	ErrDocumentFormat   = errors.New("document format error")
	ErrExtraction       = errors.New("extraction error")
	ErrEmbedding        = errors.New("embedding error")
	ErrIndexUnavailable = errors.New("collection unavailable")
	ErrAuthentication   = errors.New("authentication error")
	ErrCompletion       = errors.New("completion error")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error is a stage failure tagged with its kind.
type Error struct {
	Kind  error  // one of the Err* kinds above
	Stage string // pipeline stage, e.g. "extract", "embed"
	Err   error  // underlying cause, may be nil
}

// NewError builds an *Error for the given kind and stage.
func NewError(kind error, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind error, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StageOf returns the stage of the first *Error in err's chain, or "".
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// KindOf returns the kind of the first *Error in err's chain, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
