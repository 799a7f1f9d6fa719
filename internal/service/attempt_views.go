package service

import (
	"time"

	"lms_assessment_backend/internal/model"
)

// Viewer is the authenticated caller as seen by the service layer.
type Viewer struct {
	UserID uint
	Role   model.UserRole
}

// AttemptDetail is the read model of GET /api/attempts/:id.
type AttemptDetail struct {
	ID             string           `json:"id"`
	UserID         uint             `json:"userId"`
	AssessmentID   uint             `json:"assessmentId"`
	AttemptNumber  int              `json:"attemptNumber"`
	StartedAt      time.Time        `json:"startedAt"`
	EndedAt        *time.Time       `json:"endedAt"`
	Deadline       *time.Time       `json:"deadline,omitempty"`
	Score          *float64         `json:"score"`
	Passed         *bool            `json:"passed"`
	PassMark       float64          `json:"passMark"`
	TotalPoints    int              `json:"totalPoints"`
	AnswersVisible bool             `json:"answersVisible"`
	Questions      []QuestionView   `json:"questions"`
	Responses      []model.Response `json:"responses"`
}

type QuestionView struct {
	ID           uint               `json:"id"`
	Text         string             `json:"text"`
	Type         model.QuestionType `json:"type"`
	Points       int                `json:"points"`
	DisplayOrder int                `json:"displayOrder"`
	ImageRef     string             `json:"imageRef,omitempty"`
	Explanation  string             `json:"explanation,omitempty"`
	Choices      []ChoiceView       `json:"choices,omitempty"`
}

// ChoiceView hides IsCorrect (nil) until answers may be revealed.
type ChoiceView struct {
	ID           uint   `json:"id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"displayOrder"`
	IsCorrect    *bool  `json:"isCorrect,omitempty"`
}

// canReadAttempt: the owner and graders may read an attempt and its files.
func canReadAttempt(v Viewer, attempt *model.Attempt) bool {
	return attempt.UserID == v.UserID || v.Role.CanGrade()
}

// answersVisible: graders always see the key; the owner sees it only after
// finishing, and only if the assessment allows it.
func answersVisible(v Viewer, attempt *model.Attempt, assessment *model.Assessment) bool {
	if v.Role.CanGrade() {
		return true
	}
	return attempt.IsFinished() && assessment.ShowAnswersAfterCompletion
}

func buildQuestionViews(assessment *model.Assessment, reveal bool) []QuestionView {
	views := make([]QuestionView, 0, len(assessment.Questions))
	for _, q := range assessment.Questions {
		qv := QuestionView{
			ID:           q.ID,
			Text:         q.Text,
			Type:         q.Type,
			Points:       q.Points,
			DisplayOrder: q.DisplayOrder,
			ImageRef:     q.ImageRef,
		}
		if reveal {
			qv.Explanation = q.Explanation
		}
		// short answer choices are the accepted answers themselves
		if q.Type.ChoiceBased() || reveal {
			for _, c := range q.Choices {
				cv := ChoiceView{ID: c.ID, Text: c.Text, DisplayOrder: c.DisplayOrder}
				if reveal {
					correct := c.IsCorrect
					cv.IsCorrect = &correct
				}
				qv.Choices = append(qv.Choices, cv)
			}
		}
		views = append(views, qv)
	}
	return views
}
