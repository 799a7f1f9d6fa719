package service

import (
	"fmt"
	"testing"
	"time"

	"lms_assessment_backend/internal/config"
	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/repository"
	"lms_assessment_backend/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	studentID = uint(7)
	otherID   = uint(8)
	teacherID = uint(90)
	courseID  = uint(100)
)

type testEnv struct {
	db        *gorm.DB
	attempts  *AttemptService
	responses *ResponseService
	grading   *GradingService
	progress  *ProgressService
	storage   *StorageService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	assessments := repository.NewAssessmentRepository(db, nil, 0)
	attempts := repository.NewAttemptRepository(db)
	responses := repository.NewResponseRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	locker := NewLocalAttemptLocker(5 * time.Second)

	progress := NewProgressService(progressRepo)
	policy := NewPolicyService(attempts, progressRepo)
	attemptSvc := NewAttemptService(db, assessments, attempts, responses, policy, progress, locker, 0)
	storage := &StorageService{
		Provider:       &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: t.TempDir()}},
		MaxUploadBytes: 1 << 20,
	}

	return &testEnv{
		db:        db,
		attempts:  attemptSvc,
		responses: NewResponseService(db, assessments, attempts, responses, storage, locker, 0),
		grading:   NewGradingService(attemptSvc),
		progress:  progress,
		storage:   storage,
	}
}

// quiz is the seeded fixture: Q1 multiple choice worth 2, Q2 true/false
// worth 1, pass mark 60.
type quiz struct {
	assessment *model.Assessment
	module     *model.CourseModule
	mc         *model.Question
	mcRight    uint
	mcWrong    uint
	tf         *model.Question
	tfTrue     uint
	tfFalse    uint
}

func (e *testEnv) seedModule(t *testing.T, hasContent bool) *model.CourseModule {
	t.Helper()
	m := &model.CourseModule{CourseID: courseID, Title: "Module", HasContent: hasContent}
	require.NoError(t, e.db.Create(m).Error)
	return m
}

func (e *testEnv) seedQuiz(t *testing.T, module *model.CourseModule, mutate func(a *model.Assessment)) *quiz {
	t.Helper()
	a := &model.Assessment{
		CourseID: courseID,
		Kind:     model.KindQuiz,
		Title:    "Quiz",
		PassMark: 60,
		Questions: []model.Question{
			{
				Text:         "Pick A",
				Type:         model.MultipleChoice,
				Points:       2,
				DisplayOrder: 1,
				Explanation:  "A is right",
				Choices: []model.Choice{
					{Text: "A", IsCorrect: true, DisplayOrder: 1},
					{Text: "B", DisplayOrder: 2},
				},
			},
			{
				Text:         "Sky is blue",
				Type:         model.TrueFalse,
				Points:       1,
				DisplayOrder: 2,
				Choices: []model.Choice{
					{Text: "true", IsCorrect: true, DisplayOrder: 1},
					{Text: "false", DisplayOrder: 2},
				},
			},
		},
	}
	if module != nil {
		a.ModuleID = &module.ID
	}
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, e.db.Create(a).Error)
	// false values are skipped by gorm's default tag on create
	require.NoError(t, e.db.Model(&model.Assessment{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"is_active":               a.IsActive,
		"allow_multiple_attempts": a.AllowMultipleAttempts,
	}).Error)

	q := &quiz{assessment: a, module: module}
	q.mc = &a.Questions[0]
	q.mcRight, q.mcWrong = q.mc.Choices[0].ID, q.mc.Choices[1].ID
	if len(a.Questions) > 1 && a.Questions[1].Type == model.TrueFalse {
		q.tf = &a.Questions[1]
		q.tfTrue, q.tfFalse = q.tf.Choices[0].ID, q.tf.Choices[1].ID
	}
	return q
}

// activeQuiz seeds an active quiz allowing multiple attempts.
func (e *testEnv) activeQuiz(t *testing.T, module *model.CourseModule) *quiz {
	return e.seedQuiz(t, module, func(a *model.Assessment) {
		a.IsActive = true
		a.AllowMultipleAttempts = true
	})
}

func (e *testEnv) enroll(t *testing.T, userID uint) *model.Enrollment {
	t.Helper()
	en := &model.Enrollment{UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}
	require.NoError(t, e.db.Create(en).Error)
	return en
}

func (e *testEnv) start(t *testing.T, q *quiz, userID uint) *model.Attempt {
	t.Helper()
	a, err := e.attempts.CreateAttempt(t.Context(), userID, q.assessment.ID)
	require.NoError(t, err)
	return a
}

func (e *testEnv) answerChoice(t *testing.T, attemptID string, questionID, choiceID uint) *model.Response {
	t.Helper()
	resp, err := e.responses.RecordResponse(t.Context(), studentID, attemptID, ResponseInput{QuestionID: questionID, ChoiceID: &choiceID})
	require.NoError(t, err)
	return resp
}

func strPtr(s string) *string { return &s }
