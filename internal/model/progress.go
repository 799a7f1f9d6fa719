package model

import "time"

// The records below belong to the course/enrollment collaborators. They are
// shipped with this service so the progress cascade has somewhere to land.

// CourseModule is a unit of a course. Modules with HasContent also track
// lesson completion besides their assessment.
type CourseModule struct {
	BaseModel
	CourseID     uint   `gorm:"index;not null" json:"courseId"`
	Title        string `gorm:"size:255;not null" json:"title"`
	DisplayOrder int    `gorm:"default:0" json:"displayOrder"`
	HasContent   bool   `gorm:"default:false" json:"hasContent"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

type ModuleProgress struct {
	BaseModel
	UserID              uint       `gorm:"not null;uniqueIndex:uniq_module_progress,priority:1" json:"userId"`
	ModuleID            uint       `gorm:"not null;uniqueIndex:uniq_module_progress,priority:2" json:"moduleId"`
	CourseID            uint       `gorm:"index;not null" json:"courseId"`
	ContentPercent      float64    `gorm:"default:0" json:"contentPercent"`
	AssessmentCompleted bool       `gorm:"default:false" json:"assessmentCompleted"`
	AssessmentScore     *float64   `json:"assessmentScore,omitempty"`
	CompletionPercent   float64    `gorm:"default:0" json:"completionPercent"`
	Completed           bool       `gorm:"default:false" json:"completed"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

func (ModuleProgress) TableName() string {
	return "module_progress"
}

type CourseProgress struct {
	BaseModel
	UserID           uint    `gorm:"not null;uniqueIndex:uniq_course_progress,priority:1" json:"userId"`
	CourseID         uint    `gorm:"not null;uniqueIndex:uniq_course_progress,priority:2" json:"courseId"`
	CompletedModules int     `gorm:"default:0" json:"completedModules"`
	TotalModules     int     `gorm:"default:0" json:"totalModules"`
	ProgressPercent  float64 `gorm:"default:0" json:"progressPercent"`
}

func (CourseProgress) TableName() string {
	return "course_progress"
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

type Enrollment struct {
	BaseModel
	UserID          uint             `gorm:"not null;uniqueIndex:uniq_enrollment,priority:1" json:"userId"`
	CourseID        uint             `gorm:"not null;uniqueIndex:uniq_enrollment,priority:2" json:"courseId"`
	Status          EnrollmentStatus `gorm:"size:20;not null;default:'active'" json:"status"`
	ProgressPercent float64          `gorm:"default:0" json:"progressPercent"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// Eligible reports whether the enrollment lets the user take assessments.
func (e *Enrollment) Eligible() bool {
	return e.Status == EnrollmentActive || e.Status == EnrollmentCompleted
}
