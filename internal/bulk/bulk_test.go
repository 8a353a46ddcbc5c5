package bulk

import (
	"context"
	"errors"
	"testing"

	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
	"actas-cli/internal/validate"
)

func f(v float64) *float64 { return &v }

// memTarget applies the lifecycle directly to an in-memory map.
type memTarget struct {
	m      lifecycle.Machine
	actas  map[string]*model.Acta
	failOn map[string]error
}

func (t *memTarget) Validate(_ context.Context, ref string) (model.Metrics, error) {
	a, ok := t.actas[ref]
	if !ok {
		return model.Metrics{}, model.NotFoundError{Kind: "acta", ID: ref}
	}
	return t.m.Validate(a), nil
}

func (t *memTarget) Transition(_ context.Context, op model.Operation, ref string) (model.Status, bool, error) {
	if err := t.failOn[ref]; err != nil {
		return "", false, err
	}
	a, ok := t.actas[ref]
	if !ok {
		return "", false, model.NotFoundError{Kind: "acta", ID: ref}
	}
	res, err := t.m.Apply(a, op, nil)
	if err != nil {
		return "", false, err
	}
	*a = *res.Acta
	return res.To, res.Changed, nil
}

func newActa(section string, complete bool) *model.Acta {
	a := model.NewActa(2024, model.Section{ID: section, Students: []string{"s1", "s2"}}, "MAT", "1")
	a.Evaluations = []model.Evaluation{{ID: "E1", Weight: 50}, {ID: "E2", Weight: 50}}
	a.Grades.Set("s1", "E1", f(12))
	a.Grades.Set("s1", "E2", f(14))
	a.Grades.Set("s2", "E1", f(10))
	if complete {
		a.Grades.Set("s2", "E2", f(16))
	}
	return &a
}

func newTarget(valid, invalid int) (*memTarget, []string) {
	t := &memTarget{m: lifecycle.New(validate.Default()), actas: map[string]*model.Acta{}}
	refs := []string{}
	for i := 0; i < valid+invalid; i++ {
		a := newActa(string(rune('A'+i)), i < valid)
		t.actas[a.Ref] = a
		refs = append(refs, a.Ref)
	}
	return t, refs
}

func TestLockBulk_PartialFailure(t *testing.T) {
	target, refs := newTarget(3, 2)
	c := Coordinator{Target: target}

	res, err := c.LockBulk(context.Background(), refs)
	if err != nil {
		t.Fatalf("lock bulk: %v", err)
	}
	if res.Succeeded != 3 || res.Failed != 2 {
		t.Fatalf("expected 3/2, got %d/%d", res.Succeeded, res.Failed)
	}
	for i, ref := range refs {
		d := res.Details[ref]
		if i < 3 {
			if !d.OK || d.Status != model.StatusLocked || target.actas[ref].Status != model.StatusLocked {
				t.Fatalf("%s: expected locked, got %+v / %s", ref, d, target.actas[ref].Status)
			}
			continue
		}
		if d.OK || d.Reason != ReasonValidationFailed || len(d.Errors) != 1 || d.Errors[0] != "incomplete grades" {
			t.Fatalf("%s: unexpected detail %+v", ref, d)
		}
		if target.actas[ref].Status != model.StatusDraft {
			t.Fatalf("%s: invalid acta changed status", ref)
		}
	}
}

func TestPublishBulk_DistinguishesIllegalState(t *testing.T) {
	target, refs := newTarget(2, 0)
	c := Coordinator{Target: target}
	if _, err := c.LockBulk(context.Background(), refs[:1]); err != nil {
		t.Fatalf("lock: %v", err)
	}

	res, _ := c.PublishBulk(context.Background(), refs)
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("expected 1/1, got %d/%d", res.Succeeded, res.Failed)
	}
	if d := res.Details[refs[1]]; d.Reason != ReasonInvalidTransition {
		t.Fatalf("expected invalid_transition for draft publish, got %+v", d)
	}
	if target.actas[refs[0]].Status != model.StatusPublished {
		t.Fatalf("expected first acta published")
	}
}

func TestLockBulk_AlreadyLockedIsUnchanged(t *testing.T) {
	target, refs := newTarget(2, 0)
	c := Coordinator{Target: target}
	if _, err := c.LockBulk(context.Background(), refs[:1]); err != nil {
		t.Fatalf("lock: %v", err)
	}

	res, err := c.LockBulk(context.Background(), refs)
	if err != nil {
		t.Fatalf("lock bulk: %v", err)
	}
	if res.Succeeded != 2 || res.Failed != 0 || res.Unchanged != 1 {
		t.Fatalf("expected 2 succeeded with 1 unchanged, got %+v", res)
	}
	if d := res.Details[refs[0]]; !d.OK || d.Changed || d.Reason != ReasonAlreadyInStatus {
		t.Fatalf("unexpected detail for the locked acta: %+v", d)
	}
	if d := res.Details[refs[1]]; !d.OK || !d.Changed || d.Reason != "" {
		t.Fatalf("unexpected detail for the draft acta: %+v", d)
	}
}

func TestValidateBulk_DoesNotChangeStatus(t *testing.T) {
	target, refs := newTarget(1, 1)
	res, _ := Coordinator{Target: target}.ValidateBulk(context.Background(), append(refs, "2024:ZZ:MAT:1"))
	if res.Succeeded != 1 || res.Failed != 2 {
		t.Fatalf("expected 1/2, got %d/%d", res.Succeeded, res.Failed)
	}
	if d := res.Details["2024:ZZ:MAT:1"]; d.Reason != ReasonNotFound {
		t.Fatalf("expected not_found, got %+v", d)
	}
	if d := res.Details[refs[0]]; d.Metrics == nil || d.Metrics.CompletenessPct != 100 {
		t.Fatalf("expected metrics on valid item, got %+v", d)
	}
	for _, ref := range refs {
		if target.actas[ref].Status != model.StatusDraft {
			t.Fatalf("validate changed status of %s", ref)
		}
	}
}

type reasonErr struct{}

func (reasonErr) Error() string  { return "stale" }
func (reasonErr) Reason() string { return "version_conflict" }

func TestApply_DedupesAndUsesErrorReasons(t *testing.T) {
	target, refs := newTarget(2, 0)
	target.failOn = map[string]error{refs[1]: reasonErr{}}
	res, _ := Coordinator{Target: target}.Apply(context.Background(), OpLock, []string{refs[0], refs[1], refs[0], "bad"})
	if len(res.Details) != 3 || res.Succeeded != 1 || res.Failed != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Details[refs[1]].Reason != "version_conflict" {
		t.Fatalf("expected reason from error, got %+v", res.Details[refs[1]])
	}
	if res.Details["bad"].Reason != ReasonError {
		t.Fatalf("expected error reason for malformed ref")
	}
}

func TestApply_RejectsUnknownOp(t *testing.T) {
	target, refs := newTarget(1, 0)
	if _, err := (Coordinator{Target: target}).Apply(context.Background(), Op("archive"), refs); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

type staticCatalog []model.Section

func (c staticCatalog) Sections(context.Context) ([]model.Section, error) { return c, nil }

type mapCreator map[string]model.Acta

func (m mapCreator) Create(_ context.Context, a model.Acta) (bool, error) {
	if _, ok := m[a.Ref]; ok {
		return false, nil
	}
	m[a.Ref] = a
	return true, nil
}

func TestCreateMissingActas_Idempotent(t *testing.T) {
	cat := staticCatalog{
		{ID: "5A", Nivel: "primaria", Subjects: []string{"MAT", "COM"}, Students: []string{"s2", "s1"}},
		{ID: "1A", Nivel: "secundaria", Subjects: []string{"MAT"}, Students: []string{"s9"}},
	}
	cr := mapCreator{}
	ctx := context.Background()

	n, err := CreateMissingActas(ctx, cat, cr, 2024, "1", model.Filter{Nivel: "primaria"})
	if err != nil || n != 2 {
		t.Fatalf("first run: n=%d err=%v", n, err)
	}
	n, err = CreateMissingActas(ctx, cat, cr, 2024, "1", model.Filter{Nivel: "primaria"})
	if err != nil || n != 0 {
		t.Fatalf("second run: n=%d err=%v", n, err)
	}
	a := cr["2024:5A:MAT:1"]
	if a.Status != model.StatusDraft || a.Version != 1 || len(a.Grades) != 0 || a.Students[0] != "s1" {
		t.Fatalf("unexpected created acta: %+v", a)
	}

	n, _ = CreateMissingActas(ctx, cat, cr, 2024, "1", model.Filter{})
	if n != 1 {
		t.Fatalf("expected only the secundaria acta, got %d", n)
	}
	if _, err := CreateMissingActas(ctx, cat, cr, 2024, "", model.Filter{}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty term, got %v", err)
	}
}
