// Package apperrors classifies failures so callers can decide between rejecting,
// retrying, or giving up.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel classes. Wrapped errors are matched with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrDuplicate  = errors.New("duplicate asset")
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("transient infrastructure error")
	ErrPermanent  = errors.New("permanent error")
)

type classified struct {
	class error
	err   error
}

func (e *classified) Error() string {
	return e.err.Error()
}

func (e *classified) Unwrap() []error {
	return []error{e.class, e.err}
}

func wrap(class error, err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: class, err: err}
}

// Validation returns an ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Duplicate returns an ErrDuplicate naming the live asset that owns hash.
func Duplicate(existingID, hash string) error {
	return fmt.Errorf("%w: content %s already stored as %s", ErrDuplicate, hash, existingID)
}

// NotFound returns an ErrNotFound for the given kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	return wrap(ErrTransient, err)
}

// Permanent marks err as not worth retrying. A nil err stays nil.
func Permanent(err error) error {
	return wrap(ErrPermanent, err)
}

// Retryable reports whether err may succeed on a later attempt.
// Unclassified errors count as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermanent):
		return false
	}
	return true
}
