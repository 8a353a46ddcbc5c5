// Package lifecycle is the acta state machine:
//
//	DRAFT --lock--> LOCKED --publish--> PUBLISHED
//	DRAFT <-unlock- LOCKED <-unpublish- PUBLISHED
//
// Grades may only be saved in DRAFT. Lock is guarded by the validation engine.
package lifecycle

import (
	"errors"

	"actas-cli/internal/model"
	"actas-cli/internal/validate"
)

var errMissingPayload = errors.New("SAVE requires a grade sheet")

type Machine struct {
	Engine validate.Engine
}

func New(engine validate.Engine) Machine {
	return Machine{Engine: engine}
}

type Result struct {
	Acta    *model.Acta
	From    model.Status
	To      model.Status
	Changed bool
}

type edge struct {
	from model.Status
	to   model.Status
}

var edges = map[model.Operation]edge{
	model.OpLock:      {from: model.StatusDraft, to: model.StatusLocked},
	model.OpUnlock:    {from: model.StatusLocked, to: model.StatusDraft},
	model.OpPublish:   {from: model.StatusLocked, to: model.StatusPublished},
	model.OpUnpublish: {from: model.StatusPublished, to: model.StatusLocked},
}

// Validate recomputes and attaches metrics. Callable in any status.
func (m Machine) Validate(a *model.Acta) model.Metrics {
	met := m.Engine.Compute(*a)
	a.Metrics = &met
	return met
}

func (m Machine) Lock(a *model.Acta) (Result, error) { return m.Transition(a, model.OpLock) }
func (m Machine) Unlock(a *model.Acta) (Result, error) { return m.Transition(a, model.OpUnlock) }
func (m Machine) Publish(a *model.Acta) (Result, error) { return m.Transition(a, model.OpPublish) }
func (m Machine) Unpublish(a *model.Acta) (Result, error) { return m.Transition(a, model.OpUnpublish) }

// Transition applies a status-changing operation. Applying an operation whose
// target is already the current status is a no-op (Changed=false).
func (m Machine) Transition(a *model.Acta, op model.Operation) (Result, error) {
	if op == model.OpSave {
		return Result{}, InvalidTransitionError{Ref: a.Ref, Op: op, From: a.Status}
	}
	e, ok := edges[op]
	if !ok {
		return Result{}, InvalidTransitionError{Ref: a.Ref, Op: op, From: a.Status}
	}
	prev := a.Status
	if prev == e.to {
		return Result{Acta: a, From: prev, To: prev, Changed: false}, nil
	}
	if prev != e.from {
		return Result{}, InvalidTransitionError{Ref: a.Ref, Op: op, From: prev}
	}
	if op == model.OpLock {
		if met := m.Validate(a); !met.Valid() {
			return Result{}, ValidationFailedError{Ref: a.Ref, Errors: met.Errors}
		}
	}
	a.Status = e.to
	m.Validate(a)
	return Result{Acta: a, From: prev, To: e.to, Changed: true}, nil
}

// Save replaces the grade snapshot of a DRAFT acta. Status is unchanged;
// metrics are recomputed and returned on the acta.
func (m Machine) Save(a *model.Acta, sheet model.GradeSheet) (Result, error) {
	if a.Status != model.StatusDraft {
		return Result{}, InvalidTransitionError{Ref: a.Ref, Op: model.OpSave, From: a.Status}
	}
	if err := model.CheckSheet(sheet); err != nil {
		return Result{}, err
	}
	cp := sheet.Clone()
	if cp.Evaluations != nil {
		a.Evaluations = cp.Evaluations
	}
	a.Grades = cp.Grades
	if a.Grades == nil {
		a.Grades = model.Grades{}
	}
	m.Validate(a)
	return Result{Acta: a, From: a.Status, To: a.Status, Changed: true}, nil
}

// Apply dispatches an operation (with its optional payload) onto a.
func (m Machine) Apply(a *model.Acta, op model.Operation, payload *model.GradeSheet) (Result, error) {
	if op == model.OpSave {
		if payload == nil {
			return Result{}, model.InputError{Err: errMissingPayload}
		}
		return m.Save(a, *payload)
	}
	return m.Transition(a, op)
}
