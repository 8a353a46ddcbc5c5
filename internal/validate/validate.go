// Package validate computes the derived metrics of an acta.
//
// Compute is pure: identical input always yields identical metrics.
package validate

import (
	"math"

	"actas-cli/internal/model"
)

const (
	ErrWeights    = "weights do not sum to 100"
	ErrIncomplete = "incomplete grades"
	ErrOutOfRange = "scores out of range"
)

const (
	DefaultMinScore = 0
	DefaultMaxScore = 20
)

type Engine struct {
	MinScore float64
	MaxScore float64
}

func Default() Engine {
	return Engine{MinScore: DefaultMinScore, MaxScore: DefaultMaxScore}
}

// Compute recomputes metrics from evaluations, roster and grades.
// Errors are appended in a fixed order: weights, completeness, range.
func (e Engine) Compute(a model.Acta) model.Metrics {
	m := model.Metrics{Errors: []string{}}

	for _, ev := range a.Evaluations {
		m.SumOfWeights += ev.Weight
	}
	m.WeightsValid = math.Round(m.SumOfWeights) == 100

	m.ExpectedCells = len(a.Students) * len(a.Evaluations)
	for _, sid := range a.Students {
		for _, ev := range a.Evaluations {
			score := a.Grades.Score(sid, ev.ID)
			if score == nil {
				continue
			}
			m.FilledCells++
			if *score < e.MinScore || *score > e.MaxScore || math.IsNaN(*score) {
				m.OutOfRange++
			}
		}
	}
	if m.ExpectedCells > 0 {
		m.CompletenessPct = 100 * m.FilledCells / m.ExpectedCells
	}

	if !m.WeightsValid {
		m.Errors = append(m.Errors, ErrWeights)
	}
	if m.CompletenessPct < 100 {
		m.Errors = append(m.Errors, ErrIncomplete)
	}
	if m.OutOfRange > 0 {
		m.Errors = append(m.Errors, ErrOutOfRange)
	}
	return m
}
