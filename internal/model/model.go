package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusLocked    Status = "LOCKED"
	StatusPublished Status = "PUBLISHED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusLocked, StatusPublished:
		return true
	}
	return false
}

// ParseStatus accepts any casing ("locked", "Locked", "LOCKED").
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status: %q", s)
	}
	return st, nil
}

type Evaluation struct {
	ID     string  `json:"id" yaml:"id" validate:"required,excludesall=:"`
	Weight float64 `json:"weight" yaml:"weight" validate:"gte=0,lte=100"`
}

// Grades maps studentId -> evaluationId -> score. A nil score is an empty cell.
type Grades map[string]map[string]*float64

func (g Grades) Score(studentID, evaluationID string) *float64 {
	if g == nil {
		return nil
	}
	row, ok := g[studentID]
	if !ok {
		return nil
	}
	return row[evaluationID]
}

func (g Grades) Set(studentID, evaluationID string, score *float64) {
	row, ok := g[studentID]
	if !ok {
		row = map[string]*float64{}
		g[studentID] = row
	}
	if score == nil {
		row[evaluationID] = nil
		return
	}
	v := *score
	row[evaluationID] = &v
}

func (g Grades) Clone() Grades {
	if g == nil {
		return nil
	}
	out := make(Grades, len(g))
	for sid, row := range g {
		cp := make(map[string]*float64, len(row))
		for eid, v := range row {
			if v == nil {
				cp[eid] = nil
				continue
			}
			x := *v
			cp[eid] = &x
		}
		out[sid] = cp
	}
	return out
}

// GradeSheet is the full grade snapshot carried by a SAVE.
// When Evaluations is nil the acta keeps its current evaluation list.
type GradeSheet struct {
	Evaluations []Evaluation `json:"evaluations,omitempty" validate:"omitempty,unique=ID,dive"`
	Grades      Grades       `json:"grades"`
}

func (s GradeSheet) Clone() GradeSheet {
	out := GradeSheet{Grades: s.Grades.Clone()}
	if s.Evaluations != nil {
		out.Evaluations = append([]Evaluation{}, s.Evaluations...)
	}
	return out
}

type Metrics struct {
	SumOfWeights    float64  `json:"sumOfWeights"`
	WeightsValid    bool     `json:"weightsValid"`
	CompletenessPct int      `json:"completenessPct"`
	FilledCells     int      `json:"filledCells"`
	ExpectedCells   int      `json:"expectedCells"`
	OutOfRange      int      `json:"outOfRange"`
	Errors          []string `json:"errors"`
}

func (m Metrics) Valid() bool { return len(m.Errors) == 0 }

type Acta struct {
	Ref       string `json:"ref"`
	Year      int    `json:"year"`
	SectionID string `json:"sectionId"`
	SubjectID string `json:"subjectId"`
	Term      string `json:"term"`

	// Section labels copied from the catalog at creation; used by filters and reports.
	Nivel   string `json:"nivel,omitempty"`
	Grado   string `json:"grado,omitempty"`
	Seccion string `json:"seccion,omitempty"`

	Status      Status       `json:"status"`
	Evaluations []Evaluation `json:"evaluations"`
	Students    []string     `json:"students"`
	Grades      Grades       `json:"grades"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Derived on read; never persisted.
	Metrics *Metrics `json:"metrics,omitempty"`
}

func (a Acta) Clone() Acta {
	out := a
	out.Evaluations = append([]Evaluation{}, a.Evaluations...)
	out.Students = append([]string{}, a.Students...)
	out.Grades = a.Grades.Clone()
	if a.Metrics != nil {
		m := *a.Metrics
		m.Errors = append([]string{}, a.Metrics.Errors...)
		out.Metrics = &m
	}
	return out
}

// NewActa returns a DRAFT acta with no grades for the given key.
func NewActa(year int, sec Section, subjectID, term string) Acta {
	students := append([]string{}, sec.Students...)
	sort.Strings(students)
	return Acta{
		Ref:         FormatRef(year, sec.ID, subjectID, term),
		Year:        year,
		SectionID:   sec.ID,
		SubjectID:   subjectID,
		Term:        term,
		Nivel:       sec.Nivel,
		Grado:       sec.Grado,
		Seccion:     sec.Seccion,
		Status:      StatusDraft,
		Evaluations: []Evaluation{},
		Students:    students,
		Grades:      Grades{},
		Version:     1,
	}
}

// Section is one catalog entry: a class group with its subjects and roster.
type Section struct {
	ID       string   `json:"id" yaml:"id" validate:"required,excludesall=:"`
	Nivel    string   `json:"nivel" yaml:"nivel"`
	Grado    string   `json:"grado" yaml:"grado"`
	Seccion  string   `json:"seccion" yaml:"seccion"`
	Subjects []string `json:"subjects" yaml:"subjects" validate:"dive,required,excludesall=:"`
	Students []string `json:"students" yaml:"students" validate:"dive,required"`
}

// Conflict marks a ref whose queued change was rejected by the remote.
// The ref stays frozen for local edits until it is refreshed.
type Conflict struct {
	Ref            string    `json:"ref"`
	EntryID        string    `json:"entryId"`
	Operation      Operation `json:"operation"`
	BaseVersion    int64     `json:"baseVersion"`
	CurrentVersion int64     `json:"currentVersion,omitempty"`
	Reason         string    `json:"reason"`
	DetectedAt     time.Time `json:"detectedAt"`
}

func FormatRef(year int, sectionID, subjectID, term string) string {
	return fmt.Sprintf("%d:%s:%s:%s", year, sectionID, subjectID, term)
}

type RefParts struct {
	Year      int
	SectionID string
	SubjectID string
	Term      string
}

func ParseRef(ref string) (RefParts, error) {
	parts := strings.Split(strings.TrimSpace(ref), ":")
	if len(parts) != 4 {
		return RefParts{}, fmt.Errorf("invalid ref %q: want year:section:subject:term", ref)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year <= 0 {
		return RefParts{}, fmt.Errorf("invalid ref %q: bad year", ref)
	}
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) == "" {
			return RefParts{}, fmt.Errorf("invalid ref %q: empty component", ref)
		}
	}
	return RefParts{Year: year, SectionID: parts[1], SubjectID: parts[2], Term: parts[3]}, nil
}

// IsRef reports whether s looks like an acta ref.
func IsRef(s string) bool {
	_, err := ParseRef(s)
	return err == nil
}
