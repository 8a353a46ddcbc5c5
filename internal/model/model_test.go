package model

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	p, err := ParseRef("2024:5A:MAT:1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Year != 2024 || p.SectionID != "5A" || p.SubjectID != "MAT" || p.Term != "1" {
		t.Fatalf("unexpected parts: %+v", p)
	}
	if FormatRef(p.Year, p.SectionID, p.SubjectID, p.Term) != "2024:5A:MAT:1" {
		t.Fatalf("format mismatch")
	}

	for _, bad := range []string{"", "2024:5A:MAT", "x:5A:MAT:1", "0:5A:MAT:1", "2024::MAT:1", "2024:5A:MAT:1:extra"} {
		if IsRef(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestParseStatusAndOperation(t *testing.T) {
	if s, err := ParseStatus("locked"); err != nil || s != StatusLocked {
		t.Fatalf("unexpected: %v %v", s, err)
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatalf("expected error")
	}
	if op, err := ParseOperation(" unpublish "); err != nil || op != OpUnpublish {
		t.Fatalf("unexpected: %v %v", op, err)
	}
}

func TestNewActa(t *testing.T) {
	a := NewActa(2024, Section{ID: "5A", Nivel: "primaria", Grado: "5", Seccion: "A", Students: []string{"s2", "s1"}}, "MAT", "1")
	if a.Status != StatusDraft || a.Version != 1 {
		t.Fatalf("expected DRAFT v1, got %s v%d", a.Status, a.Version)
	}
	if a.Students[0] != "s1" || a.Ref != "2024:5A:MAT:1" {
		t.Fatalf("unexpected acta: %+v", a)
	}
}

func TestActaCloneDoesNotAlias(t *testing.T) {
	a := NewActa(2024, Section{ID: "5A", Students: []string{"s1"}}, "MAT", "1")
	v := 10.0
	a.Grades.Set("s1", "E1", &v)
	v = 11

	b := a.Clone()
	b.Grades.Set("s1", "E1", nil)
	b.Students[0] = "zz"

	if got := a.Grades.Score("s1", "E1"); got == nil || *got != 10 {
		t.Fatalf("original grades changed: %v", got)
	}
	if a.Students[0] != "s1" {
		t.Fatalf("original students changed")
	}
}

func TestFilterMatch(t *testing.T) {
	a := Acta{Year: 2024, Term: "1", SectionID: "5A", SubjectID: "MAT", Nivel: "Primaria", Grado: "5", Seccion: "A", Status: StatusLocked}
	cases := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty", Filter{}, true},
		{"year", Filter{Year: 2024}, true},
		{"other year", Filter{Year: 2023}, false},
		{"nivel case-insensitive", Filter{Nivel: "primaria"}, true},
		{"status", Filter{Status: StatusPublished}, false},
		{"subject", Filter{SubjectID: "mat", Term: "1"}, true},
		{"seccion", Filter{Seccion: "B"}, false},
	}
	for _, tc := range cases {
		if got := tc.f.Match(a); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestQueueEntryCheck(t *testing.T) {
	ok := QueueEntry{ID: "x", Seq: 1, TargetRef: "2024:5A:MAT:1", Operation: OpLock}
	if err := ok.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	withPayload := ok
	withPayload.Payload = &GradeSheet{}
	if err := withPayload.Check(); err == nil {
		t.Fatalf("expected LOCK with payload to fail")
	}
	save := ok
	save.Operation = OpSave
	if err := save.Check(); err == nil {
		t.Fatalf("expected SAVE without payload to fail")
	}
}

func TestCheckSheet(t *testing.T) {
	err := CheckSheet(GradeSheet{Evaluations: []Evaluation{{ID: "E1", Weight: 50}, {ID: "E1", Weight: 50}}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for duplicate evaluations, got %v", err)
	}
	if err := CheckSheet(GradeSheet{Evaluations: []Evaluation{{ID: "E1", Weight: 60}, {ID: "E2", Weight: 40}}}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := CheckSection(Section{ID: "5:A"}); err == nil {
		t.Fatalf("expected section id with ':' to be rejected")
	}
}
