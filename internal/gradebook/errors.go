package gradebook

import (
	"errors"
	"fmt"

	"actas-cli/internal/model"
)

var (
	ErrConflictPending = errors.New("conflict pending")
	ErrPendingChanges  = errors.New("pending local changes")
)

// ConflictPendingError refuses local edits on a ref whose queued change was
// rejected by the server, until the ref is refreshed.
type ConflictPendingError struct {
	Ref      string
	Conflict model.Conflict
}

func (e ConflictPendingError) Error() string {
	return fmt.Sprintf("acta %s has an unresolved conflict (%s); run `actas refresh %s`", e.Ref, e.Conflict.Reason, e.Ref)
}

func (e ConflictPendingError) Is(target error) bool { return target == ErrConflictPending }

func (e ConflictPendingError) Reason() string { return "conflict_pending" }

type PendingChangesError struct {
	Ref   string
	Count int
}

func (e PendingChangesError) Error() string {
	return fmt.Sprintf("acta %s has %d unsynced change(s); sync first or use --force to discard them", e.Ref, e.Count)
}

func (e PendingChangesError) Is(target error) bool { return target == ErrPendingChanges }
