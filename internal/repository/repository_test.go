package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/util"
	"lms_assessment_backend/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

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

func tfQuestion(order int, choices ...model.Choice) model.Question {
	return model.Question{Text: "TF", Type: model.TrueFalse, Points: 1, DisplayOrder: order, Choices: choices}
}

func TestLoadQuestionBankOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssessmentRepository(db, nil, 0)

	a := &model.Assessment{
		CourseID: 1,
		Title:    "Bank",
		Questions: []model.Question{
			{Text: "second", Type: model.ShortAnswer, Points: 1, DisplayOrder: 2},
			{Text: "first", Type: model.MultipleChoice, Points: 2, DisplayOrder: 1, Choices: []model.Choice{
				{Text: "b", DisplayOrder: 2},
				{Text: "a", IsCorrect: true, DisplayOrder: 1},
			}},
		},
	}
	require.NoError(t, db.Create(a).Error)

	bank, err := repo.LoadQuestionBank(t.Context(), a.ID)
	require.NoError(t, err)
	require.Len(t, bank.Questions, 2)
	assert.Equal(t, "first", bank.Questions[0].Text)
	assert.Equal(t, "a", bank.Questions[0].Choices[0].Text)
	assert.Equal(t, 3, bank.TotalPoints())

	_, err = repo.LoadQuestionBank(t.Context(), a.ID+100)
	assert.True(t, errors.Is(err, util.ErrNotFound))

	exists, err := repo.QuestionExists(t.Context(), bank.Questions[1].ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.QuestionExists(t.Context(), 9999)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAuditTrueFalseQuestions(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssessmentRepository(db, nil, 0)

	a := &model.Assessment{
		CourseID: 1,
		Title:    "Audit",
		Questions: []model.Question{
			tfQuestion(1, model.Choice{Text: "True", IsCorrect: true}, model.Choice{Text: "false"}),
			tfQuestion(2, model.Choice{Text: "true", IsCorrect: true}),
			tfQuestion(3, model.Choice{Text: "true", IsCorrect: true}, model.Choice{Text: "false", IsCorrect: true}),
			tfQuestion(4, model.Choice{Text: "yes", IsCorrect: true}, model.Choice{Text: "no"}),
			{Text: "MC", Type: model.MultipleChoice, Points: 1, DisplayOrder: 5, Choices: []model.Choice{{Text: "only"}}},
		},
	}
	require.NoError(t, db.Create(a).Error)

	issues, err := repo.AuditTrueFalseQuestions(t.Context())
	require.NoError(t, err)
	require.Len(t, issues, 3)

	byQuestion := map[uint]TrueFalseIssue{}
	for _, i := range issues {
		byQuestion[i.QuestionID] = i
	}
	assert.Equal(t, "expected exactly two choices", byQuestion[a.Questions[1].ID].Problem)
	assert.Equal(t, "expected exactly one correct choice", byQuestion[a.Questions[2].ID].Problem)
	assert.Equal(t, 2, byQuestion[a.Questions[2].ID].CorrectCount)
	assert.Equal(t, `choices must be "true" and "false"`, byQuestion[a.Questions[3].ID].Problem)
	assert.NotContains(t, byQuestion, a.Questions[0].ID)
}

func TestAttemptNumberUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewAttemptRepository(db)

	first := &model.Attempt{UserID: 1, AssessmentID: 2, AttemptNumber: 1, StartedAt: time.Now()}
	require.NoError(t, repo.Create(t.Context(), first))

	dup := &model.Attempt{UserID: 1, AssessmentID: 2, AttemptNumber: 1, StartedAt: time.Now()}
	err := repo.Create(t.Context(), dup)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	count, err := repo.CountByUserAndAssessment(t.Context(), 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = repo.FindByID(t.Context(), uuid.NewString())
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, IsDuplicateKey(nil))
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKey(errors.New("Error 1062: Duplicate entry '1-2-1' for key")))
	assert.False(t, IsDuplicateKey(errors.New("connection refused")))
}

func TestResponseUpsertOverwrites(t *testing.T) {
	db := newTestDB(t)
	attempts := NewAttemptRepository(db)
	responses := NewResponseRepository(db)

	attempt := &model.Attempt{UserID: 1, AssessmentID: 2, AttemptNumber: 1, StartedAt: time.Now()}
	require.NoError(t, attempts.Create(t.Context(), attempt))

	first := "first"
	r1 := &model.Response{AttemptID: attempt.ID, QuestionID: 5, TextAnswer: &first}
	require.NoError(t, responses.Upsert(t.Context(), r1))

	second := "second"
	r2 := &model.Response{AttemptID: attempt.ID, QuestionID: 5, TextAnswer: &second, PointsEarned: 1}
	require.NoError(t, responses.Upsert(t.Context(), r2))

	assert.Equal(t, r1.ID, r2.ID)
	list, err := responses.ListByAttempt(t.Context(), attempt.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].TextAnswer)
	assert.Equal(t, "second", *list[0].TextAnswer)
	assert.Equal(t, 1.0, list[0].PointsEarned)
}

func TestListPendingOnlyFinishedAttempts(t *testing.T) {
	db := newTestDB(t)
	attempts := NewAttemptRepository(db)
	responses := NewResponseRepository(db)

	open := &model.Attempt{UserID: 1, AssessmentID: 2, AttemptNumber: 1, StartedAt: time.Now()}
	require.NoError(t, attempts.Create(t.Context(), open))
	ended := time.Now()
	done := &model.Attempt{UserID: 1, AssessmentID: 2, AttemptNumber: 2, StartedAt: time.Now(), EndedAt: &ended}
	require.NoError(t, attempts.Create(t.Context(), done))

	essay := "essay"
	require.NoError(t, responses.Upsert(t.Context(), &model.Response{AttemptID: open.ID, QuestionID: 9, TextAnswer: &essay}))
	require.NoError(t, responses.Upsert(t.Context(), &model.Response{AttemptID: done.ID, QuestionID: 9, TextAnswer: &essay}))

	pending, err := responses.ListPendingByAssessment(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, done.ID, pending[0].AttemptID)
}

func TestIsEnrolled(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)

	require.NoError(t, db.Create(&model.Enrollment{UserID: 1, CourseID: 10, Status: model.EnrollmentActive}).Error)
	require.NoError(t, db.Create(&model.Enrollment{UserID: 2, CourseID: 10, Status: model.EnrollmentCompleted}).Error)
	require.NoError(t, db.Create(&model.Enrollment{UserID: 3, CourseID: 10, Status: model.EnrollmentDropped}).Error)

	tests := []struct {
		name   string
		userID uint
		want   bool
	}{
		{"active", 1, true},
		{"completed", 2, true},
		{"dropped", 3, false},
		{"not enrolled", 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.IsEnrolled(t.Context(), tt.userID, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
