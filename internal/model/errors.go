package model

import (
	"errors"
	"fmt"
)

// Error kinds. Components wrap failures with E so callers can match the kind
// with errors.Is while the original cause stays reachable.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrStorage       = errors.New("storage error")
	ErrConversion    = errors.New("conversion error")
	ErrEmbedding     = errors.New("embedding error")
	ErrConflict      = errors.New("conflict")
	ErrConfiguration = errors.New("configuration error")
	ErrDispatch      = errors.New("dispatch error")
)

var kinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrStorage,
	ErrConversion,
	ErrEmbedding,
	ErrConflict,
	ErrConfiguration,
	ErrDispatch,
}

// Error pairs an error kind with the operation that failed and its cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// E builds an *Error. A nil cause yields an error that only carries the kind.
func E(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of the outermost *Error in err's chain, falling back
// to the first bare sentinel found. It returns nil for unclassified errors.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
