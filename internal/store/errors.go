package store

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrQueueCorruption = errors.New("queue corruption")

// QueueCorruptionError names the stored entry that could not be decoded. The
// queue refuses to flush until the entry is discarded explicitly.
type QueueCorruptionError struct {
	Key string
	Err error
}

func (e QueueCorruptionError) Error() string {
	return fmt.Sprintf("queue corruption at %s: %v", e.Key, e.Err)
}

func (e QueueCorruptionError) Unwrap() error { return e.Err }

func (e QueueCorruptionError) Is(target error) bool { return target == ErrQueueCorruption }
