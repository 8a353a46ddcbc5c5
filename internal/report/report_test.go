package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"actas-cli/internal/model"
)

func f(v float64) *float64 { return &v }

func acta(section, subject string, status model.Status, scores map[string][2]float64) model.Acta {
	students := []string{}
	for sid := range scores {
		students = append(students, sid)
	}
	a := model.NewActa(2024, model.Section{ID: section, Nivel: "primaria", Grado: "5", Seccion: section[len(section)-1:], Students: students}, subject, "1")
	a.Status = status
	a.Evaluations = []model.Evaluation{{ID: "E1", Weight: 40}, {ID: "E2", Weight: 60}}
	for sid, s := range scores {
		a.Grades.Set(sid, "E1", f(s[0]))
		a.Grades.Set(sid, "E2", f(s[1]))
	}
	return a
}

func fixture() []model.Acta {
	return []model.Acta{
		acta("5B", "MAT", model.StatusPublished, map[string][2]float64{"s3": {10, 20}}),
		acta("5A", "MAT", model.StatusPublished, map[string][2]float64{"s2": {15, 15}, "s1": {10, 10}}),
		acta("5A", "COM", model.StatusPublished, map[string][2]float64{"s1": {20, 10}, "s2": {0, 0}}),
		acta("5A", "CTA", model.StatusLocked, map[string][2]float64{"s1": {20, 20}, "s2": {20, 20}}),
	}
}

func TestProject_BoletinesOnlyPublishedAndSorted(t *testing.T) {
	p, err := Project(fixture(), model.Filter{}, KindBoletines)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	want := [][]string{
		{"2024", "1", "5A", "s1", "COM", "14.00"},
		{"2024", "1", "5A", "s1", "MAT", "10.00"},
		{"2024", "1", "5A", "s2", "COM", "0.00"},
		{"2024", "1", "5A", "s2", "MAT", "15.00"},
		{"2024", "1", "5B", "s3", "MAT", "16.00"},
	}
	if len(p.Rows) != len(want) {
		t.Fatalf("expected %d rows, got %d: %v", len(want), len(p.Rows), p.Rows)
	}
	for i := range want {
		if strings.Join(p.Rows[i], ",") != strings.Join(want[i], ",") {
			t.Fatalf("row %d: expected %v, got %v", i, want[i], p.Rows[i])
		}
	}
}

func TestProject_Centralizador(t *testing.T) {
	p, err := Project(fixture(), model.Filter{SectionID: "5A"}, KindCentralizador)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if got := strings.Join(p.Header, ","); got != "year,term,nivel,grado,seccion,sectionId,studentId,COM,MAT" {
		t.Fatalf("unexpected header: %s", got)
	}
	if len(p.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", p.Rows)
	}
	if got := strings.Join(p.Rows[0], ","); got != "2024,1,primaria,5,A,5A,s1,14.00,10.00" {
		t.Fatalf("unexpected row: %s", got)
	}
}

func TestProject_IgnoresStatusInFilter(t *testing.T) {
	p, _ := Project(fixture(), model.Filter{Status: model.StatusLocked}, KindBoletines)
	for _, r := range p.Rows {
		if r[4] == "CTA" {
			t.Fatalf("locked acta leaked into projection")
		}
	}
}

func TestProject_Deterministic(t *testing.T) {
	a, _ := Project(fixture(), model.Filter{}, KindCentralizador)
	for i := 0; i < 20; i++ {
		b, _ := Project(fixture(), model.Filter{}, KindCentralizador)
		var ba, bb bytes.Buffer
		_ = WriteCSV(&ba, a)
		_ = WriteCSV(&bb, b)
		if ba.String() != bb.String() {
			t.Fatalf("projection not deterministic")
		}
	}
}

func TestWriteFile_Overwrite(t *testing.T) {
	dir := t.TempDir()
	p, _ := Project(fixture(), model.Filter{}, KindBoletines)
	res, err := WriteFile(dir, p, WriteOptions{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(res.Written) != 1 || res.Written[0] != filepath.Join(dir, "boletines.csv") {
		t.Fatalf("unexpected written: %v", res.Written)
	}
	if _, err := WriteFile(dir, p, WriteOptions{}); err == nil {
		t.Fatalf("expected error without overwrite")
	}
	if _, err := WriteFile(dir, p, WriteOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, _ := os.ReadFile(res.Written[0])
	if !strings.HasPrefix(string(b), "year,term,sectionId,studentId,subjectId,final\n") {
		t.Fatalf("unexpected csv: %q", b)
	}
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind("pdf"); err == nil {
		t.Fatalf("expected error")
	}
	if k, _ := ParseKind("Boletines"); k != KindBoletines {
		t.Fatalf("unexpected kind %q", k)
	}
}
