package model

type AssessmentKind string

const (
	KindQuiz       AssessmentKind = "quiz"
	KindExam       AssessmentKind = "exam"
	KindAssignment AssessmentKind = "assignment"
)

// Assessment generalizes quizzes, exams and question-based assignments.
// It is authored elsewhere and read-only to the grading engine.
// swagger:model Assessment
type Assessment struct {
	BaseModel
	CourseID    uint           `gorm:"index;not null" json:"courseId"`
	ModuleID    *uint          `gorm:"index" json:"moduleId,omitempty"`
	Kind        AssessmentKind `gorm:"size:20;not null;default:'quiz'" json:"kind"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	PassMark    float64        `gorm:"not null;default:0" json:"passMark"` // percentage 0-100
	TimeLimit   *int           `json:"timeLimit,omitempty"`                // minutes

	IsActive                   bool `gorm:"default:true" json:"isActive"`
	AllowMultipleAttempts      bool `gorm:"default:false" json:"allowMultipleAttempts"`
	MaxAttempts                *int `json:"maxAttempts,omitempty"`
	ShowAnswersAfterCompletion bool `gorm:"default:false" json:"showAnswersAfterCompletion"`

	Questions []Question `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// HasModule reports whether the assessment counts towards a module's progress.
func (a *Assessment) HasModule() bool {
	return a.ModuleID != nil && *a.ModuleID > 0
}

// TotalPoints sums the points of every loaded question.
func (a *Assessment) TotalPoints() int {
	total := 0
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}

// FindQuestion looks up a loaded question by id.
func (a *Assessment) FindQuestion(id uint) (*Question, bool) {
	for i := range a.Questions {
		if a.Questions[i].ID == id {
			return &a.Questions[i], true
		}
	}
	return nil, false
}

// swagger:model Question
type Question struct {
	BaseModel
	AssessmentID uint         `gorm:"index;not null" json:"assessmentId"`
	Text         string       `gorm:"type:text;not null" json:"text"`
	Type         QuestionType `gorm:"size:20;not null" json:"type"`
	Points       int          `gorm:"not null;default:1" json:"points"`
	DisplayOrder int          `gorm:"default:0" json:"displayOrder"`
	Explanation  string       `gorm:"type:text" json:"explanation,omitempty"`
	ImageRef     string       `gorm:"size:512" json:"imageRef,omitempty"`

	Choices []Choice `gorm:"foreignKey:QuestionID" json:"choices,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectChoices returns the choices flagged as correct, in display order.
func (q *Question) CorrectChoices() []Choice {
	var out []Choice
	for _, c := range q.Choices {
		if c.IsCorrect {
			out = append(out, c)
		}
	}
	return out
}

// FindChoice looks up a choice of this question by id.
func (q *Question) FindChoice(id uint) (*Choice, bool) {
	for i := range q.Choices {
		if q.Choices[i].ID == id {
			return &q.Choices[i], true
		}
	}
	return nil, false
}

// swagger:model Choice
type Choice struct {
	BaseModel
	QuestionID   uint   `gorm:"index;not null" json:"questionId"`
	Text         string `gorm:"type:text;not null" json:"text"`
	IsCorrect    bool   `gorm:"default:false" json:"isCorrect"`
	DisplayOrder int    `gorm:"default:0" json:"displayOrder"`
}

func (Choice) TableName() string {
	return "choices"
}
