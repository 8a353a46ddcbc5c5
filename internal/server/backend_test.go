package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"actas-cli/internal/catalog"
	"actas-cli/internal/connectivity"
	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
	"actas-cli/internal/records"
	"actas-cli/internal/remote"
	"actas-cli/internal/report"
	"actas-cli/internal/validate"
)

func f(v float64) *float64 { return &v }

const testRef = "2024:5A:MAT:1"

func testCatalog(t *testing.T) *catalog.Static {
	t.Helper()
	c, err := catalog.New([]model.Section{
		{ID: "5A", Nivel: "primaria", Grado: "5", Seccion: "A", Subjects: []string{"MAT", "COM"}, Students: []string{"s1", "s2"}},
		{ID: "5B", Nivel: "primaria", Grado: "5", Seccion: "B", Subjects: []string{"MAT"}, Students: []string{"s3"}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend(Config{
		Store:   records.NewMemory(),
		Catalog: testCatalog(t),
		Engine:  validate.Default(),
		Clock:   connectivity.NewFixedClock(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)),
	})
	if _, err := b.CreateMissingActas(context.Background(), 2024, "1", model.Filter{}); err != nil {
		t.Fatalf("create missing: %v", err)
	}
	return b
}

func fullSheet() model.GradeSheet {
	g := model.Grades{}
	for _, s := range []string{"s1", "s2"} {
		g.Set(s, "E1", f(12))
		g.Set(s, "E2", f(16))
	}
	return model.GradeSheet{
		Evaluations: []model.Evaluation{{ID: "E1", Weight: 50}, {ID: "E2", Weight: 50}},
		Grades:      g,
	}
}

func TestBackend_CreateMissingIsIdempotent(t *testing.T) {
	b := newBackend(t)
	n, err := b.CreateMissingActas(context.Background(), 2024, "1", model.Filter{})
	if err != nil || n != 0 {
		t.Fatalf("expected 0 created on second run, got %d err=%v", n, err)
	}
	all, _ := b.ListActas(context.Background(), model.Filter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 actas, got %d", len(all))
	}
	if all[0].Metrics == nil {
		t.Fatalf("expected metrics on listed actas")
	}
}

func TestBackend_VersionGuard(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	ack, err := b.SaveActa(ctx, testRef, fullSheet(), 1)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ack.Version != 2 {
		t.Fatalf("expected version 2, got %d", ack.Version)
	}

	// Replaying the same write is rejected instead of applied twice.
	_, err = b.SaveActa(ctx, testRef, fullSheet(), 1)
	var ce remote.ConflictError
	if !errors.As(err, &ce) || ce.Current != 2 || ce.Expected != 1 {
		t.Fatalf("expected conflict at 2, got %v", err)
	}

	if _, err := b.LockActa(ctx, testRef, 2); err != nil {
		t.Fatalf("lock: %v", err)
	}
	a, _ := b.GetActa(ctx, testRef)
	if a.Status != model.StatusLocked || a.Version != 3 || !a.UpdatedAt.Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected acta after lock: status=%s version=%d updated=%v", a.Status, a.Version, a.UpdatedAt)
	}
}

func TestBackend_TwoClientsFromSameVersion(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	// Walk the acta to version 7.
	for i := 1; i < 7; i++ {
		if _, err := b.SaveActa(ctx, testRef, model.GradeSheet{Grades: model.Grades{}}, int64(i)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if _, err := b.SaveActa(ctx, testRef, fullSheet(), 7); err != nil {
		t.Fatalf("client A: %v", err)
	}
	_, err := b.SaveActa(ctx, testRef, model.GradeSheet{Grades: model.Grades{}}, 7)
	if !errors.Is(err, remote.ErrVersionConflict) {
		t.Fatalf("client B: expected version conflict, got %v", err)
	}
}

func TestBackend_LifecycleErrorsPassThrough(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	if _, err := b.LockActa(ctx, testRef, 1); !errors.Is(err, lifecycle.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if _, err := b.PublishActa(ctx, testRef, 1); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := b.LockActa(ctx, "2024:9Z:MAT:1", 1); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	a, _ := b.GetActa(ctx, testRef)
	if a.Version != 1 {
		t.Fatalf("rejected writes must not bump the version, got %d", a.Version)
	}
}

func TestBackend_NoopDoesNotBumpVersion(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	_, _ = b.SaveActa(ctx, testRef, fullSheet(), 1)
	_, _ = b.LockActa(ctx, testRef, 2)
	ack, err := b.LockActa(ctx, testRef, 3)
	if err != nil || ack.Version != 3 || ack.Status != model.StatusLocked {
		t.Fatalf("expected no-op ack at 3, got %+v err=%v", ack, err)
	}
}

func TestBackend_BulkAndExport(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	if _, err := b.SaveActa(ctx, testRef, fullSheet(), 1); err != nil {
		t.Fatalf("save: %v", err)
	}
	refs := []string{testRef, "2024:5A:COM:1", "2024:5B:MAT:1"}

	res, err := b.LockBulk(ctx, refs)
	if err != nil {
		t.Fatalf("lock bulk: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 2 {
		t.Fatalf("expected 1/2, got %d/%d", res.Succeeded, res.Failed)
	}
	res, _ = b.PublishBulk(ctx, refs)
	if res.Succeeded != 1 || res.Details["2024:5B:MAT:1"].Reason != "invalid_transition" {
		t.Fatalf("unexpected publish bulk: %+v", res)
	}

	p, err := b.ExportProjection(ctx, model.Filter{}, report.KindBoletines)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(p.Rows) != 2 || p.Rows[0][5] != "14.00" {
		t.Fatalf("unexpected projection: %+v", p.Rows)
	}
	if _, err := b.ExportProjection(ctx, model.Filter{}, report.Kind("pdf")); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown kind, got %v", err)
	}
}

func TestBackend_CreateMissingWithoutCatalog(t *testing.T) {
	b := NewBackend(Config{Engine: validate.Default()})
	if _, err := b.CreateMissingActas(context.Background(), 2024, "1", model.Filter{}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
