package validate

import (
	"reflect"
	"testing"

	"actas-cli/internal/model"
)

func f(v float64) *float64 { return &v }

func twoByTwo() model.Acta {
	a := model.Acta{
		Ref:         "2024:5A:MAT:1",
		Status:      model.StatusDraft,
		Evaluations: []model.Evaluation{{ID: "E1", Weight: 50}, {ID: "E2", Weight: 50}},
		Students:    []string{"s1", "s2"},
		Grades:      model.Grades{},
	}
	a.Grades.Set("s1", "E1", f(14))
	a.Grades.Set("s2", "E1", f(11))
	a.Grades.Set("s1", "E2", f(16))
	return a
}

func TestCompute_ThreeOfFourCellsFilled(t *testing.T) {
	m := Default().Compute(twoByTwo())
	if m.CompletenessPct != 75 {
		t.Fatalf("expected completeness 75, got %d", m.CompletenessPct)
	}
	if !m.WeightsValid || m.SumOfWeights != 100 {
		t.Fatalf("expected valid weights, got sum=%v valid=%v", m.SumOfWeights, m.WeightsValid)
	}
	if !reflect.DeepEqual(m.Errors, []string{ErrIncomplete}) {
		t.Fatalf("unexpected errors: %v", m.Errors)
	}
}

func TestCompute_Complete(t *testing.T) {
	a := twoByTwo()
	a.Grades.Set("s2", "E2", f(12))
	m := Default().Compute(a)
	if m.CompletenessPct != 100 || len(m.Errors) != 0 {
		t.Fatalf("expected complete and valid, got %+v", m)
	}
}

func TestCompute_WeightsValidIffSumIs100(t *testing.T) {
	cases := []struct {
		weights []float64
		want    bool
	}{
		{[]float64{50, 50}, true},
		{[]float64{33.33, 33.33, 33.34}, true},
		{[]float64{40, 50}, false},
		{[]float64{60, 50}, false},
		{nil, false},
	}
	for _, tc := range cases {
		a := model.Acta{}
		for i, w := range tc.weights {
			a.Evaluations = append(a.Evaluations, model.Evaluation{ID: string(rune('A' + i)), Weight: w})
		}
		m := Default().Compute(a)
		if m.WeightsValid != tc.want {
			t.Fatalf("weights %v: expected valid=%v, got %v (sum=%v)", tc.weights, tc.want, m.WeightsValid, m.SumOfWeights)
		}
	}
}

func TestCompute_ErrorOrderIsFixed(t *testing.T) {
	a := model.Acta{
		Evaluations: []model.Evaluation{{ID: "E1", Weight: 30}},
		Students:    []string{"s1", "s2"},
		Grades:      model.Grades{},
	}
	a.Grades.Set("s1", "E1", f(25))
	m := Default().Compute(a)
	want := []string{ErrWeights, ErrIncomplete, ErrOutOfRange}
	if !reflect.DeepEqual(m.Errors, want) {
		t.Fatalf("expected %v, got %v", want, m.Errors)
	}
	if m.OutOfRange != 1 {
		t.Fatalf("expected 1 out-of-range cell, got %d", m.OutOfRange)
	}
}

func TestCompute_ZeroFactorsGiveZeroCompleteness(t *testing.T) {
	a := model.Acta{Evaluations: []model.Evaluation{{ID: "E1", Weight: 100}}}
	m := Default().Compute(a)
	if m.CompletenessPct != 0 || m.ExpectedCells != 0 {
		t.Fatalf("expected zero completeness, got %+v", m)
	}
}

func TestCompute_IgnoresCellsOutsideRosterAndEvaluations(t *testing.T) {
	a := twoByTwo()
	a.Grades.Set("s2", "E2", f(12))
	a.Grades.Set("ghost", "E1", f(99))
	a.Grades.Set("s1", "E9", f(99))
	m := Default().Compute(a)
	if m.FilledCells != 4 || m.OutOfRange != 0 || !m.Valid() {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := twoByTwo()
	first := Default().Compute(a)
	for i := 0; i < 20; i++ {
		if got := Default().Compute(a); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
