package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InputError wraps a structural validation failure of caller-provided data.
type InputError struct {
	Err error
}

func (e InputError) Error() string { return "invalid input: " + e.Err.Error() }

func (e InputError) Unwrap() error { return e.Err }

func (e InputError) Is(target error) bool { return target == ErrInvalidInput }
