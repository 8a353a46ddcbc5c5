package gradebook

import "actas-cli/internal/model"

// Command is one local mutation. Every command goes through the same path in
// Client.Execute regardless of which surface issued it.
type Command interface {
	Target() string
	Operation() model.Operation
	Payload() *model.GradeSheet
}

type SaveCommand struct {
	Ref   string
	Sheet model.GradeSheet
}

func (c SaveCommand) Target() string { return c.Ref }
func (c SaveCommand) Operation() model.Operation { return model.OpSave }
func (c SaveCommand) Payload() *model.GradeSheet {
	s := c.Sheet
	return &s
}

type LockCommand struct{ Ref string }

func (c LockCommand) Target() string { return c.Ref }
func (c LockCommand) Operation() model.Operation { return model.OpLock }
func (c LockCommand) Payload() *model.GradeSheet { return nil }

type UnlockCommand struct{ Ref string }

func (c UnlockCommand) Target() string { return c.Ref }
func (c UnlockCommand) Operation() model.Operation { return model.OpUnlock }
func (c UnlockCommand) Payload() *model.GradeSheet { return nil }

type PublishCommand struct{ Ref string }

func (c PublishCommand) Target() string { return c.Ref }
func (c PublishCommand) Operation() model.Operation { return model.OpPublish }
func (c PublishCommand) Payload() *model.GradeSheet { return nil }

type UnpublishCommand struct{ Ref string }

func (c UnpublishCommand) Target() string { return c.Ref }
func (c UnpublishCommand) Operation() model.Operation { return model.OpUnpublish }
func (c UnpublishCommand) Payload() *model.GradeSheet { return nil }

// CommandFor builds the command for op. payload is only used by SAVE.
func CommandFor(op model.Operation, ref string, payload *model.GradeSheet) (Command, bool) {
	switch op {
	case model.OpSave:
		if payload == nil {
			return nil, false
		}
		return SaveCommand{Ref: ref, Sheet: *payload}, true
	case model.OpLock:
		return LockCommand{Ref: ref}, true
	case model.OpUnlock:
		return UnlockCommand{Ref: ref}, true
	case model.OpPublish:
		return PublishCommand{Ref: ref}, true
	case model.OpUnpublish:
		return UnpublishCommand{Ref: ref}, true
	}
	return nil, false
}
