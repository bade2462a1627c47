package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// conflict signals a uniqueness violation: duplicate enrollment, duplicate
// evaluation, etc. Storage-layer integrity errors are translated to it at the
// repository boundary so a lost race surfaces the same way as an app-level check.
type conflict struct {
	message string
}

func NewConflictError(msg string) error {
	return &conflict{message: msg}
}

func (e conflict) Error() string { return e.message }

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*conflict)
	return ok
}

// forbidden signals an authorization/eligibility failure: not enrolled, wrong role.
type forbidden struct {
	message string
}

func NewForbiddenError(msg string) error {
	return &forbidden{message: msg}
}

func (e forbidden) Error() string { return e.message }

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*forbidden)
	return ok
}

// notFound signals a reference to a nonexistent entity.
type notFound struct {
	message string
}

func NewNotFoundError(msg string) error {
	return &notFound{message: msg}
}

func (e notFound) Error() string { return e.message }

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*notFound)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string { return s.message }

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
