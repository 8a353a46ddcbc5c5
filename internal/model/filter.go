package model

import "strings"

// Filter selects actas. Zero-valued fields match anything.
type Filter struct {
	Year      int    `json:"year,omitempty" query:"year"`
	Term      string `json:"term,omitempty" query:"term"`
	Nivel     string `json:"nivel,omitempty" query:"nivel"`
	Grado     string `json:"grado,omitempty" query:"grado"`
	Seccion   string `json:"seccion,omitempty" query:"seccion"`
	SectionID string `json:"sectionId,omitempty" query:"sectionId"`
	SubjectID string `json:"subjectId,omitempty" query:"subjectId"`
	Status    Status `json:"status,omitempty" query:"status"`
}

func (f Filter) Match(a Acta) bool {
	if f.Year != 0 && a.Year != f.Year {
		return false
	}
	if !eq(f.Term, a.Term) {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !eq(f.SubjectID, a.SubjectID) {
		return false
	}
	return f.matchSection(a.SectionID, a.Nivel, a.Grado, a.Seccion)
}

// MatchSection applies only the section-level fields (nivel, grado, seccion, sectionId).
func (f Filter) MatchSection(s Section) bool {
	return f.matchSection(s.ID, s.Nivel, s.Grado, s.Seccion)
}

// MatchSubject is true when no subject is selected or it equals id.
func (f Filter) MatchSubject(id string) bool {
	return eq(f.SubjectID, id)
}

func (f Filter) matchSection(id, nivel, grado, seccion string) bool {
	return eq(f.SectionID, id) && eq(f.Nivel, nivel) && eq(f.Grado, grado) && eq(f.Seccion, seccion)
}

func eq(want, got string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return true
	}
	return strings.EqualFold(want, strings.TrimSpace(got))
}
