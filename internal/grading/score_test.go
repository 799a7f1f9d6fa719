package grading

import (
	"math"
	"testing"

	"lms_assessment_backend/internal/model"
)

func response(questionID uint, points float64) model.Response {
	return model.Response{QuestionID: questionID, PointsEarned: points}
}

func TestComputeScore(t *testing.T) {
	twoQuestions := []model.Question{
		*question(1, model.MultipleChoice, 2),
		*question(2, model.MultipleChoice, 1),
	}

	tests := []struct {
		name      string
		questions []model.Question
		responses []model.Response
		passMark  float64
		earned    float64
		total     float64
		percent   float64
		passed    bool
	}{
		{
			name:      "one right one wrong passes",
			questions: twoQuestions,
			responses: []model.Response{response(1, 2), response(2, 0)},
			passMark:  60,
			earned:    2, total: 3, percent: 200.0 / 3, passed: true,
		},
		{
			name:      "nothing answered",
			questions: twoQuestions,
			passMark:  60,
			earned:    0, total: 3, percent: 0, passed: false,
		},
		{
			name:      "unanswered counts against",
			questions: twoQuestions,
			responses: []model.Response{response(2, 1)},
			passMark:  50,
			earned:    1, total: 3, percent: 100.0 / 3, passed: false,
		},
		{
			name:      "pass mark boundary is inclusive",
			questions: twoQuestions,
			responses: []model.Response{response(1, 2), response(2, 1)},
			passMark:  100,
			earned:    3, total: 3, percent: 100, passed: true,
		},
		{
			name:     "empty bank",
			passMark: 0,
			earned:   0, total: 0, percent: 0, passed: true,
		},
		{
			name:      "empty bank with pass mark",
			passMark:  50,
			earned:    0, total: 0, percent: 0, passed: false,
		},
		{
			name:      "foreign responses ignored",
			questions: twoQuestions,
			responses: []model.Response{response(1, 2), response(99, 5)},
			passMark:  60,
			earned:    2, total: 3, percent: 200.0 / 3, passed: true,
		},
		{
			name:      "earned points clamped to question points",
			questions: twoQuestions,
			responses: []model.Response{response(1, 7), response(2, -1)},
			passMark:  60,
			earned:    2, total: 3, percent: 200.0 / 3, passed: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeScore(tc.questions, tc.responses, tc.passMark)
			if got.EarnedPoints != tc.earned || got.TotalPoints != tc.total {
				t.Fatalf("earned/total = %v/%v, want %v/%v", got.EarnedPoints, got.TotalPoints, tc.earned, tc.total)
			}
			if math.Abs(got.Percent-tc.percent) > 1e-9 {
				t.Fatalf("Percent = %v, want %v", got.Percent, tc.percent)
			}
			if got.Passed != tc.passed {
				t.Fatalf("Passed = %v, want %v", got.Passed, tc.passed)
			}
			if got.Percent < 0 || got.Percent > 100 {
				t.Fatalf("Percent %v out of bounds", got.Percent)
			}
			if got.Passed != (got.Percent >= tc.passMark) {
				t.Fatalf("Passed inconsistent with pass mark")
			}
		})
	}
}

func TestComputeScore_ExactPassMark(t *testing.T) {
	bank := []model.Question{*question(1, model.Essay, 100)}
	for _, earned := range []float64{29, 57, 58, 60, 99} {
		got := ComputeScore(bank, []model.Response{response(1, earned)}, earned)
		if got.Percent != earned {
			t.Fatalf("Percent = %v, want exactly %v", got.Percent, earned)
		}
		if !got.Passed {
			t.Fatalf("%v/100 with pass mark %v should pass", earned, earned)
		}
	}

	// 7/10 reaches a 70 pass mark on a different total
	tenPoints := []model.Question{*question(1, model.Essay, 4), *question(2, model.Essay, 6)}
	got := ComputeScore(tenPoints, []model.Response{response(1, 4), response(2, 3)}, 70)
	if got.Percent != 70 || !got.Passed {
		t.Fatalf("7/10 = %v passed=%v, want 70 passed", got.Percent, got.Passed)
	}
}

func TestComputeScore_Deterministic(t *testing.T) {
	qs := []model.Question{*question(1, model.ShortAnswer, 3), *question(2, model.Essay, 2)}
	rs := []model.Response{response(2, 1.5), response(1, 3)}
	a := ComputeScore(qs, rs, 70)
	b := ComputeScore(qs, []model.Response{rs[1], rs[0]}, 70)
	if a != b {
		t.Fatalf("order changed the score: %+v vs %+v", a, b)
	}
}
