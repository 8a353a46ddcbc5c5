package model

import (
	"fmt"
	"strings"
	"time"
)

type Operation string

const (
	OpSave      Operation = "SAVE"
	OpLock      Operation = "LOCK"
	OpUnlock    Operation = "UNLOCK"
	OpPublish   Operation = "PUBLISH"
	OpUnpublish Operation = "UNPUBLISH"
)

func (o Operation) Valid() bool {
	switch o {
	case OpSave, OpLock, OpUnlock, OpPublish, OpUnpublish:
		return true
	}
	return false
}

func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation: %q", s)
	}
	return op, nil
}

// QueueEntry is one pending local mutation awaiting remote acknowledgment.
type QueueEntry struct {
	ID          string      `json:"id" validate:"required"`
	Seq         uint64      `json:"seq" validate:"required"`
	TargetRef   string      `json:"targetRef" validate:"required"`
	Operation   Operation   `json:"operation" validate:"required"`
	Payload     *GradeSheet `json:"payload,omitempty"`
	BaseVersion int64       `json:"baseVersion" validate:"gte=0"`
	Attempts    int         `json:"attempts" validate:"gte=0"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Check reports structural problems in a decoded entry.
func (e QueueEntry) Check() error {
	if err := validate.Struct(e); err != nil {
		return err
	}
	if !e.Operation.Valid() {
		return fmt.Errorf("unknown operation %q", e.Operation)
	}
	if _, err := ParseRef(e.TargetRef); err != nil {
		return err
	}
	if e.Operation == OpSave && e.Payload == nil {
		return fmt.Errorf("SAVE entry without payload")
	}
	if e.Operation != OpSave && e.Payload != nil {
		return fmt.Errorf("%s entry with payload", e.Operation)
	}
	return nil
}
