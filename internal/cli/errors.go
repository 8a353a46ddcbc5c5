package cli

import (
	"errors"
	"fmt"

	"actas-cli/internal/gradebook"
	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
	"actas-cli/internal/remote"
	"actas-cli/internal/store"
	"actas-cli/internal/syncer"
)

// hintsFor suggests the next command for errors a user can act on.
func hintsFor(err error) []string {
	var (
		conflict gradebook.ConflictPendingError
		pending  gradebook.PendingChangesError
		corrupt  store.QueueCorruptionError
	)
	switch {
	case errors.As(err, &conflict):
		return []string{"actas show " + conflict.Ref, "actas refresh " + conflict.Ref}
	case errors.As(err, &pending):
		return []string{"actas sync now", fmt.Sprintf("actas refresh %s --force", pending.Ref)}
	case errors.As(err, &corrupt):
		return []string{"actas queue list", "actas queue discard " + corrupt.Key}
	case errors.Is(err, model.ErrNotFound):
		return []string{"actas pull"}
	case errors.Is(err, lifecycle.ErrValidationFailed):
		return []string{"actas validate <ref>"}
	case errors.Is(err, syncer.ErrOffline), remote.IsTransient(err):
		return []string{"actas sync status"}
	}
	return nil
}

type bulkFailedError struct {
	failed int
	total  int
}

func (e bulkFailedError) Error() string {
	return fmt.Sprintf("%d of %d refs failed", e.failed, e.total)
}
