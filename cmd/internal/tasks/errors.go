package tasks

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tasks: %v: %s", ErrInvalidInput, e.Msg)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

func notFound(op string) error {
	return fmt.Errorf("%s: task %w", op, ErrNotFound)
}
