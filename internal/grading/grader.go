// Package grading holds the side-effect free parts of assessment scoring:
// per-question auto-grading and attempt score aggregation.
package grading

import (
	"errors"
	"fmt"
	"strings"

	"lms_assessment_backend/internal/model"
)

var ErrAnswerKind = errors.New("answer kind does not match question type")

// Answer is the normalized payload of a response. The concrete types are
// ChoiceAnswer, TextAnswer and FileAnswer.
type Answer interface {
	answer()
}

// ChoiceAnswer selects one choice. ChoiceID is nil when nothing was selected.
type ChoiceAnswer struct {
	ChoiceID *uint
}

// TextAnswer is free text, used by short answer and essay questions.
type TextAnswer struct {
	Text string
}

// FileAnswer references an uploaded file, optionally with accompanying text.
type FileAnswer struct {
	FileRef string
	Text    string
}

func (ChoiceAnswer) answer() {}
func (TextAnswer) answer()   {}
func (FileAnswer) answer()   {}

// Result is the grading outcome of one response. IsCorrect stays nil while
// the response waits for a human grader.
type Result struct {
	IsCorrect    *bool
	PointsEarned float64
	NeedsManual  bool
}

// Strategy grades one question type.
type Strategy interface {
	Grade(q *model.Question, a Answer) (Result, error)
}

// Grade routes the answer to the strategy for the question's type.
func Grade(q *model.Question, a Answer) (Result, error) {
	s, err := strategyFor(q.Type)
	if err != nil {
		return Result{}, err
	}
	return s.Grade(q, a)
}

func strategyFor(t model.QuestionType) (Strategy, error) {
	switch t {
	case model.MultipleChoice, model.TrueFalse:
		return choiceStrategy{}, nil
	case model.ShortAnswer:
		return shortAnswerStrategy{}, nil
	case model.Essay, model.FileUpload:
		return manualStrategy{}, nil
	}
	return nil, fmt.Errorf("no grading strategy for question type %q", t)
}

type choiceStrategy struct{}

func (choiceStrategy) Grade(q *model.Question, a Answer) (Result, error) {
	ca, ok := a.(ChoiceAnswer)
	if !ok {
		return Result{}, ErrAnswerKind
	}
	if ca.ChoiceID == nil {
		return scored(q, false), nil
	}
	choice, found := q.FindChoice(*ca.ChoiceID)
	if !found {
		return scored(q, false), nil
	}
	return scored(q, choice.IsCorrect), nil
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Grade(q *model.Question, a Answer) (Result, error) {
	ta, ok := a.(TextAnswer)
	if !ok {
		return Result{}, ErrAnswerKind
	}
	submitted := strings.TrimSpace(ta.Text)
	if submitted == "" {
		return scored(q, false), nil
	}
	for _, c := range q.CorrectChoices() {
		if MatchesText(submitted, c.Text) {
			return scored(q, true), nil
		}
	}
	return scored(q, false), nil
}

type manualStrategy struct{}

func (manualStrategy) Grade(q *model.Question, a Answer) (Result, error) {
	switch a.(type) {
	case TextAnswer, FileAnswer:
		return Result{NeedsManual: true}, nil
	}
	return Result{}, ErrAnswerKind
}

// MatchesText compares answers after trimming surrounding whitespace and
// folding case. No partial or fuzzy matching is applied.
func MatchesText(submitted, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(expected))
}

func scored(q *model.Question, correct bool) Result {
	r := Result{IsCorrect: &correct}
	if correct {
		r.PointsEarned = float64(q.Points)
	}
	return r
}
