// Package report projects PUBLISHED actas into flat, deterministic tables.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"actas-cli/internal/model"
)

type Kind string

const (
	KindCentralizador Kind = "centralizador"
	KindBoletines     Kind = "boletines"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCentralizador, KindBoletines:
		return k, nil
	}
	return "", fmt.Errorf("unknown report kind %q (want centralizador|boletines)", s)
}

type Projection struct {
	Kind   Kind       `json:"kind"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// FinalScore is the weighted sum of a student's filled cells, score*weight/100.
// ok is false when the student has no filled cell in the acta.
func FinalScore(a model.Acta, studentID string) (float64, bool) {
	sum := 0.0
	filled := false
	for _, ev := range a.Evaluations {
		s := a.Grades.Score(studentID, ev.ID)
		if s == nil {
			continue
		}
		filled = true
		sum += *s * ev.Weight / 100
	}
	return sum, filled
}

func formatScore(a model.Acta, studentID string) string {
	v, ok := FinalScore(a, studentID)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Project keeps only PUBLISHED actas matching f and lays them out as kind.
func Project(actas []model.Acta, f model.Filter, kind Kind) (Projection, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Projection{}, err
	}
	f.Status = ""
	published := make([]model.Acta, 0, len(actas))
	for _, a := range actas {
		if a.Status == model.StatusPublished && f.Match(a) {
			published = append(published, a)
		}
	}
	if kind == KindBoletines {
		return boletines(published), nil
	}
	return centralizador(published), nil
}

func boletines(actas []model.Acta) Projection {
	p := Projection{
		Kind:   KindBoletines,
		Header: []string{"year", "term", "sectionId", "studentId", "subjectId", "final"},
		Rows:   [][]string{},
	}
	for _, a := range actas {
		for _, sid := range a.Students {
			p.Rows = append(p.Rows, []string{
				strconv.Itoa(a.Year), a.Term, a.SectionID, sid, a.SubjectID, formatScore(a, sid),
			})
		}
	}
	sortRows(p.Rows, 5)
	return p
}

type sheetKey struct {
	year      int
	term      string
	sectionID string
}

func centralizador(actas []model.Acta) Projection {
	subjectSet := map[string]bool{}
	type row struct {
		labels [3]string
		scores map[string]string
	}
	rows := map[sheetKey]map[string]*row{}
	for _, a := range actas {
		subjectSet[a.SubjectID] = true
		k := sheetKey{a.Year, a.Term, a.SectionID}
		if rows[k] == nil {
			rows[k] = map[string]*row{}
		}
		for _, sid := range a.Students {
			r := rows[k][sid]
			if r == nil {
				r = &row{labels: [3]string{a.Nivel, a.Grado, a.Seccion}, scores: map[string]string{}}
				rows[k][sid] = r
			}
			r.scores[a.SubjectID] = formatScore(a, sid)
		}
	}

	subjects := make([]string, 0, len(subjectSet))
	for s := range subjectSet {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	p := Projection{
		Kind:   KindCentralizador,
		Header: append([]string{"year", "term", "nivel", "grado", "seccion", "sectionId", "studentId"}, subjects...),
		Rows:   [][]string{},
	}
	for k, students := range rows {
		for sid, r := range students {
			line := []string{strconv.Itoa(k.year), k.term, r.labels[0], r.labels[1], r.labels[2], k.sectionID, sid}
			for _, subj := range subjects {
				line = append(line, r.scores[subj])
			}
			p.Rows = append(p.Rows, line)
		}
	}
	sortRows(p.Rows, 7)
	return p
}

// sortRows orders rows by their first n columns; year compares numerically.
func sortRows(rows [][]string, n int) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		ya, _ := strconv.Atoi(a[0])
		yb, _ := strconv.Atoi(b[0])
		if ya != yb {
			return ya < yb
		}
		for c := 1; c < n; c++ {
			if a[c] != b[c] {
				return a[c] < b[c]
			}
		}
		return false
	})
}
