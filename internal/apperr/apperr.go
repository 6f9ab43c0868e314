// Package apperr classifies failures surfaced by the tournament and deck
// services so transport layers can map them without string matching.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal     Kind = "internal"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflicting_write"
	KindIntegrity    Kind = "integrity_violation"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newf(KindInvalidState, format, args...)
}

func Conflict(format string, args ...any) error {
	return newf(KindConflict, format, args...)
}

func Integrity(format string, args ...any) error {
	return newf(KindIntegrity, format, args...)
}

func Validation(format string, args ...any) error {
	return newf(KindValidation, format, args...)
}

// Wrap attaches a kind to an underlying error, keeping it reachable through errors.Is.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
