package model

import (
	"time"

	"gorm.io/datatypes"
)

// Attempt is one user's timed run at an assessment. It is Open while EndedAt
// is nil and Finished afterwards; there is no way back.
// swagger:model Attempt
type Attempt struct {
	UUIDBase
	UserID        uint       `gorm:"not null;uniqueIndex:uniq_attempt_number,priority:1" json:"userId"`
	AssessmentID  uint       `gorm:"not null;uniqueIndex:uniq_attempt_number,priority:2;index" json:"assessmentId"`
	AttemptNumber int        `gorm:"not null;uniqueIndex:uniq_attempt_number,priority:3" json:"attemptNumber"`
	StartedAt     time.Time  `gorm:"not null" json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt"`
	Score         *float64   `json:"score"`
	Passed        *bool      `json:"passed"`

	Responses []Response `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE" json:"responses,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func (a *Attempt) IsFinished() bool {
	return a.EndedAt != nil
}

// Deadline returns the moment after which responses are no longer accepted.
// ok is false when the assessment has no time limit.
func (a *Attempt) Deadline(timeLimitMinutes *int, grace time.Duration) (deadline time.Time, ok bool) {
	if timeLimitMinutes == nil || *timeLimitMinutes <= 0 {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(*timeLimitMinutes)*time.Minute + grace), true
}

// Response is a user's answer to one question inside one attempt.
// swagger:model Response
type Response struct {
	UUIDBase
	AttemptID        string         `gorm:"type:varchar(36);not null;uniqueIndex:uniq_response_question,priority:1" json:"attemptId"`
	QuestionID       uint           `gorm:"not null;uniqueIndex:uniq_response_question,priority:2;index" json:"questionId"`
	SelectedChoiceID *uint          `json:"selectedChoiceId,omitempty"`
	TextAnswer       *string        `gorm:"type:text" json:"textAnswer,omitempty"`
	FileRef          *string        `gorm:"size:512" json:"fileRef,omitempty"`
	FileMeta         datatypes.JSON `json:"fileMeta,omitempty"`
	IsCorrect        *bool          `json:"isCorrect"`
	PointsEarned     float64        `gorm:"not null;default:0" json:"pointsEarned"`

	// set by a grader for essay and file_upload questions
	Feedback string     `gorm:"type:text" json:"feedback,omitempty"`
	GradedBy *uint      `json:"gradedBy,omitempty"`
	GradedAt *time.Time `json:"gradedAt,omitempty"`
}

func (Response) TableName() string {
	return "responses"
}

// FileMeta describes an uploaded answer file.
type FileMeta struct {
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
}
