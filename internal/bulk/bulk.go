// Package bulk applies one lifecycle operation to many actas with independent
// per-item outcomes. A failing ref never aborts or rolls back the others.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
)

type Op string

const (
	OpValidate  Op = "validate"
	OpLock      Op = "lock"
	OpUnlock    Op = "unlock"
	OpPublish   Op = "publish"
	OpUnpublish Op = "unpublish"
)

func ParseOp(s string) (Op, error) {
	switch op := Op(strings.ToLower(strings.TrimSpace(s))); op {
	case OpValidate, OpLock, OpUnlock, OpPublish, OpUnpublish:
		return op, nil
	}
	return "", fmt.Errorf("unknown bulk operation %q", s)
}

// Operation maps a transition op to its queued form. OpValidate has none.
func (o Op) Operation() (model.Operation, bool) {
	switch o {
	case OpLock:
		return model.OpLock, true
	case OpUnlock:
		return model.OpUnlock, true
	case OpPublish:
		return model.OpPublish, true
	case OpUnpublish:
		return model.OpUnpublish, true
	}
	return "", false
}

const (
	ReasonValidationFailed  = "validation_failed"
	ReasonInvalidTransition = "invalid_transition"
	ReasonNotFound          = "not_found"
	ReasonError             = "error"

	// ReasonAlreadyInStatus marks a successful item whose acta already had
	// the target status; nothing was written for it.
	ReasonAlreadyInStatus = "already_in_status"
)

type ItemResult struct {
	OK      bool           `json:"ok"`
	Status  model.Status   `json:"status,omitempty"`
	Changed bool           `json:"changed,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
	Metrics *model.Metrics `json:"metrics,omitempty"`
}

// Result aggregates per-ref outcomes. A transition asked of an acta that is
// already in the target status is a no-op, not an error: it counts as
// succeeded and also in Unchanged, with ReasonAlreadyInStatus in its detail.
type Result struct {
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Unchanged int                   `json:"unchanged"`
	Details   map[string]ItemResult `json:"details"`
}

// Target executes single-ref operations. The client facade (queued) and the
// server backend (direct) both implement it.
type Target interface {
	Validate(ctx context.Context, ref string) (model.Metrics, error)
	Transition(ctx context.Context, op model.Operation, ref string) (model.Status, bool, error)
}

type Coordinator struct {
	Target Target
}

// Apply runs op over refs in input order. Duplicate refs are collapsed to their
// first occurrence.
func (c Coordinator) Apply(ctx context.Context, op Op, refs []string) (Result, error) {
	if c.Target == nil {
		return Result{}, errors.New("bulk: missing target")
	}
	if _, err := ParseOp(string(op)); err != nil {
		return Result{}, model.InputError{Err: err}
	}
	res := Result{Details: map[string]ItemResult{}}
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if _, seen := res.Details[ref]; seen {
			continue
		}
		item := c.one(ctx, op, ref)
		res.Details[ref] = item
		if item.OK {
			res.Succeeded++
			if item.Reason == ReasonAlreadyInStatus {
				res.Unchanged++
			}
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (c Coordinator) one(ctx context.Context, op Op, ref string) ItemResult {
	if _, err := model.ParseRef(ref); err != nil {
		return ItemResult{Reason: ReasonError, Message: err.Error()}
	}
	if err := ctx.Err(); err != nil {
		return ItemResult{Reason: ReasonError, Message: err.Error()}
	}

	if op == OpValidate {
		m, err := c.Target.Validate(ctx, ref)
		if err != nil {
			return failure(err)
		}
		item := ItemResult{OK: m.Valid(), Metrics: &m}
		if !item.OK {
			item.Reason = ReasonValidationFailed
			item.Errors = append([]string{}, m.Errors...)
		}
		return item
	}

	mop, _ := op.Operation()
	status, changed, err := c.Target.Transition(ctx, mop, ref)
	if err != nil {
		return failure(err)
	}
	item := ItemResult{OK: true, Status: status, Changed: changed}
	if !changed {
		item.Reason = ReasonAlreadyInStatus
	}
	return item
}

// reasoner lets errors from layers above this package (remote, gradebook)
// name their own failure reason.
type reasoner interface {
	Reason() string
}

func failure(err error) ItemResult {
	item := ItemResult{Reason: Reason(err), Message: err.Error()}
	var vf lifecycle.ValidationFailedError
	if errors.As(err, &vf) {
		item.Errors = append([]string{}, vf.Errors...)
	}
	return item
}

// Reason classifies err into one of the detail reasons.
func Reason(err error) string {
	var r reasoner
	switch {
	case errors.Is(err, lifecycle.ErrValidationFailed):
		return ReasonValidationFailed
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return ReasonInvalidTransition
	case errors.Is(err, model.ErrNotFound):
		return ReasonNotFound
	case errors.As(err, &r):
		return r.Reason()
	}
	return ReasonError
}

func (c Coordinator) ValidateBulk(ctx context.Context, refs []string) (Result, error) {
	return c.Apply(ctx, OpValidate, refs)
}

func (c Coordinator) LockBulk(ctx context.Context, refs []string) (Result, error) {
	return c.Apply(ctx, OpLock, refs)
}

func (c Coordinator) PublishBulk(ctx context.Context, refs []string) (Result, error) {
	return c.Apply(ctx, OpPublish, refs)
}
