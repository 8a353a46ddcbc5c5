package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"actas-cli/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidationFailed  = errors.New("validation failed")
)

type InvalidTransitionError struct {
	Ref  string
	Op   model.Operation
	From model.Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s acta %s in status %s", strings.ToLower(string(e.Op)), e.Ref, e.From)
}

func (e InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type ValidationFailedError struct {
	Ref    string
	Errors []string
}

func (e ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Ref, strings.Join(e.Errors, "; "))
}

func (e ValidationFailedError) Is(target error) bool { return target == ErrValidationFailed }
