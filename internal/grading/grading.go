// Package grading scores submitted answers against a question's answer key.
package grading

import (
	"slices"
	"strings"

	"github.com/kalibanhall/NEXUS-UNIKIN-sub001/internal/model"
)

// Verdict is the outcome of evaluating one answer.
type Verdict struct {
	Correct      bool
	PointsEarned float64
	// NeedsReview is set for answers that are never auto-graded.
	NeedsReview bool
}

// Evaluate scores a submitted answer. Points are all-or-nothing: the question's
// full points when correct, zero otherwise. A nil answer is always incorrect.
func Evaluate(q model.Question, submitted model.Answer) Verdict {
	var correct bool
	switch q.Type {
	case model.QuestionSingleChoice, model.QuestionTrueFalse:
		got, ok1 := submitted.(model.Choice)
		want, ok2 := q.CorrectAnswer.(model.Choice)
		correct = ok1 && ok2 && got.Value == want.Value
	case model.QuestionMultipleSelect:
		got, ok1 := submitted.(model.Selection)
		want, ok2 := q.CorrectAnswer.(model.Selection)
		correct = ok1 && ok2 && sameSelection(got.Values, want.Values)
	case model.QuestionShortAnswer:
		got, ok1 := submitted.(model.Text)
		want, ok2 := q.CorrectAnswer.(model.Text)
		correct = ok1 && ok2 && normalizeText(got.Value) == normalizeText(want.Value)
	case model.QuestionEssay:
		return Verdict{NeedsReview: true}
	}
	if !correct {
		return Verdict{}
	}
	return Verdict{Correct: true, PointsEarned: q.Points}
}

// sameSelection compares both lists after sorting each, so order does not matter
// but multiplicity and length do.
func sameSelection(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	a := slices.Clone(got)
	b := slices.Clone(want)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
