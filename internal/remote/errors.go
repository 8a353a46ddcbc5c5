package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
)

var (
	ErrVersionConflict = errors.New("version conflict")
	ErrTransient       = errors.New("transient network failure")
	ErrRejected        = errors.New("rejected by server")

	errMissingPayload = errors.New("SAVE requires a grade sheet")
)

func errUnknownOp(op model.Operation) error { return fmt.Errorf("unknown operation %q", op) }

// ConflictError is the optimistic-concurrency rejection: the server holds
// Current while the caller based its change on Expected.
type ConflictError struct {
	Ref      string
	Expected int64
	Current  int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: based on %d, server has %d", e.Ref, e.Expected, e.Current)
}

func (e ConflictError) Is(target error) bool { return target == ErrVersionConflict }

func (e ConflictError) Reason() string { return "version_conflict" }

// TransientError wraps failures worth retrying: timeouts, refused connections, 5xx.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e TransientError) Unwrap() error { return e.Err }

func (e TransientError) Is(target error) bool { return target == ErrTransient }

// RejectedError is a request the server refused as malformed.
type RejectedError struct {
	Status  int
	Code    string
	Message string
}

func (e RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rejected (%d %s)", e.Status, e.Code)
	}
	return fmt.Sprintf("rejected (%d %s): %s", e.Status, e.Code, e.Message)
}

func (e RejectedError) Is(target error) bool { return target == ErrRejected }

// IsTransient reports whether err should leave a queued entry in place for retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRejection reports whether the server refused a change on protocol
// grounds: stale version, illegal transition, failed validation or unknown
// acta. Only these make a queued entry stale; any other failure keeps it.
func IsRejection(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, lifecycle.ErrInvalidTransition) ||
		errors.Is(err, lifecycle.ErrValidationFailed) ||
		errors.Is(err, model.ErrNotFound)
}
