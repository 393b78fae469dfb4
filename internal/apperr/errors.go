// Package apperr classifies failures by the stage that produced them.
//
// Lower layers return their own sentinel errors. Callers that cross a stage
// boundary wrap them with a Kind so the transport layer can map them to a
// response without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of the service failed.
type Kind string

const (
	KindValidation Kind = "validation"
	KindFetch      Kind = "fetch"
	KindExtraction Kind = "extraction"
	KindEmbedding  Kind = "embedding"
	KindIndex      Kind = "index"
	KindInternal   Kind = "internal"
)

// Error is a classified error.
type Error struct {
	Kind Kind   // stage that failed
	Op   string // operation, e.g. "ingest", "fetch s3"
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.Validation)
// works regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Op == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons by kind.
var (
	Validation = &Error{Kind: KindValidation}
	Fetch      = &Error{Kind: KindFetch}
	Extraction = &Error{Kind: KindExtraction}
	Embedding  = &Error{Kind: KindEmbedding}
	Index      = &Error{Kind: KindIndex}
)

// New wraps err with a kind and operation. A nil err stays nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid returns a validation error with a formatted message.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the unclassified cause message, suitable for clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		if e.Op == "" {
			return e.Err.Error()
		}
		return e.Error()
	}
	return err.Error()
}
