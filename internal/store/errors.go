package store

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these via errors.Is; the user-facing text
// lives in Error.Message and is a rendering concern only.
var (
	ErrValidation = errors.New("validation") // 400
	ErrConflict   = errors.New("conflict")   // 409
	ErrState      = errors.New("state")      // 422
	ErrNotFound   = errors.New("not found")  // 404
	ErrInternal   = errors.New("internal")   // 500
)

// Error is a tagged operation failure: a kind for branching plus the message
// shown to the end user.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func validationf(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) *Error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func statef(format string, args ...any) *Error {
	return &Error{Kind: ErrState, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func internalErr(err error) *Error {
	return &Error{Kind: ErrInternal, Message: fmt.Sprintf("🚫 Fehler bei der Datenbank: %v", err)}
}
