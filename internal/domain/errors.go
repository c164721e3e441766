package domain

import (
	"errors"
	"fmt"
)

// ValidationError is returned for missing or malformed input, before any work is done.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "validation error"
	}
}

type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e NotFoundError) Error() string {
	switch {
	case e.Resource == "":
		return "not found"
	case e.ID == "":
		return fmt.Sprintf("%s not found", e.Resource)
	default:
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
}

func (e NotFoundError) Unwrap() error { return e.Err }

// ConflictError reports a request that is well formed but clashes with current
// state, such as a second active trip or a replayed activity event.
type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

// PersistenceError wraps a backing store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("persistence failure: %v", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target PersistenceError
	return errors.As(err, &target)
}
