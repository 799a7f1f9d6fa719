package grading

import "lms_assessment_backend/internal/model"

// Score is the aggregate of an attempt's responses against its question bank.
type Score struct {
	EarnedPoints float64
	TotalPoints  float64
	Percent      float64
	Passed       bool
}

// ComputeScore sums earned points over the bank. Every question of the bank
// counts towards the total whether it was answered or not; responses to
// questions outside the bank are ignored.
func ComputeScore(questions []model.Question, responses []model.Response, passMark float64) Score {
	var s Score
	points := make(map[uint]float64, len(questions))
	for _, q := range questions {
		points[q.ID] = float64(q.Points)
		s.TotalPoints += float64(q.Points)
	}

	for _, r := range responses {
		limit, ok := points[r.QuestionID]
		if !ok {
			continue
		}
		earned := r.PointsEarned
		if earned < 0 {
			earned = 0
		}
		if earned > limit {
			earned = limit
		}
		s.EarnedPoints += earned
	}

	// multiply before dividing so whole-number percentages come out exact
	if s.TotalPoints > 0 {
		s.Percent = s.EarnedPoints * 100 / s.TotalPoints
	}
	s.Passed = s.Percent >= passMark
	return s
}
