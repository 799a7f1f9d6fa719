package service

import (
	"testing"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var teacher = Viewer{UserID: teacherID, Role: model.Teacher}

func TestGradeResponseRescoresFinishedAttempt(t *testing.T) {
	e := newTestEnv(t)
	module := e.seedModule(t, false)
	q := e.activeQuiz(t, module)
	essay := e.addQuestion(t, q, model.Question{Text: "Discuss", Type: model.Essay, Points: 5})
	e.enroll(t, studentID)
	a := e.start(t, q, studentID)

	e.answerChoice(t, a.ID, q.mc.ID, q.mcRight)
	essayResp, err := e.responses.RecordResponse(t.Context(), studentID, a.ID, ResponseInput{QuestionID: essay.ID, Text: strPtr("long answer")})
	require.NoError(t, err)

	finished, err := e.attempts.FinishAttempt(t.Context(), studentID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, *finished.Attempt.Score)
	assert.False(t, *finished.Attempt.Passed)

	pending, err := e.grading.ListPending(t.Context(), teacher, q.assessment.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, essayResp.ID, pending[0].ID)

	res, err := e.grading.GradeResponse(t.Context(), teacher, essayResp.ID, GradeInput{Points: 5, Feedback: "well argued"})
	require.NoError(t, err)
	require.NotNil(t, res.Response.IsCorrect)
	assert.True(t, *res.Response.IsCorrect)
	assert.Equal(t, 5.0, res.Response.PointsEarned)
	assert.Equal(t, "well argued", res.Response.Feedback)
	require.NotNil(t, res.Response.GradedBy)
	assert.Equal(t, teacherID, *res.Response.GradedBy)

	assert.Equal(t, 87.5, *res.Attempt.Score)
	assert.True(t, *res.Attempt.Passed)
	require.NotNil(t, res.Propagation)
	require.NotNil(t, res.Propagation.ModuleProgress)
	assert.True(t, res.Propagation.ModuleProgress.Completed)

	stored, err := e.attempts.Attempts.FindByID(t.Context(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 87.5, *stored.Score)
	assert.NotNil(t, stored.EndedAt)

	pending, err = e.grading.ListPending(t.Context(), teacher, q.assessment.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGradeResponsePartialPoints(t *testing.T) {
	e := newTestEnv(t)
	q := e.activeQuiz(t, nil)
	essay := e.addQuestion(t, q, model.Question{Text: "Discuss", Type: model.Essay, Points: 5})
	e.enroll(t, studentID)
	a := e.start(t, q, studentID)
	resp, err := e.responses.RecordResponse(t.Context(), studentID, a.ID, ResponseInput{QuestionID: essay.ID, Text: strPtr("short")})
	require.NoError(t, err)

	res, err := e.grading.GradeResponse(t.Context(), teacher, resp.ID, GradeInput{Points: 2.5})
	require.NoError(t, err)
	assert.False(t, *res.Response.IsCorrect)
	assert.Equal(t, 2.5, res.Response.PointsEarned)
	// open attempts are scored when they finish
	assert.Nil(t, res.Attempt.Score)
	assert.Nil(t, res.Propagation)

	correct := true
	res, err = e.grading.GradeResponse(t.Context(), teacher, resp.ID, GradeInput{Points: 2.5, IsCorrect: &correct})
	require.NoError(t, err)
	assert.True(t, *res.Response.IsCorrect)
}

func TestGradeResponseRejections(t *testing.T) {
	e := newTestEnv(t)
	q := e.activeQuiz(t, nil)
	essay := e.addQuestion(t, q, model.Question{Text: "Discuss", Type: model.Essay, Points: 5})
	e.enroll(t, studentID)
	a := e.start(t, q, studentID)
	essayResp, err := e.responses.RecordResponse(t.Context(), studentID, a.ID, ResponseInput{QuestionID: essay.ID, Text: strPtr("x")})
	require.NoError(t, err)
	mcResp := e.answerChoice(t, a.ID, q.mc.ID, q.mcRight)

	tests := []struct {
		name   string
		viewer Viewer
		id     string
		in     GradeInput
		want   error
	}{
		{"student cannot grade", Viewer{UserID: studentID, Role: model.Student}, essayResp.ID, GradeInput{Points: 1}, util.ErrPermissionDenied},
		{"above question points", teacher, essayResp.ID, GradeInput{Points: 6}, util.ErrInvalidScore},
		{"negative points", teacher, essayResp.ID, GradeInput{Points: -1}, util.ErrInvalidScore},
		{"auto graded response", teacher, mcResp.ID, GradeInput{Points: 1}, util.ErrInvalidPayload},
		{"unknown response", teacher, "missing", GradeInput{Points: 1}, util.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.grading.GradeResponse(t.Context(), tt.viewer, tt.id, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = e.grading.ListPending(t.Context(), Viewer{UserID: studentID, Role: model.Student}, q.assessment.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	_, err = e.grading.ListPending(t.Context(), teacher, 424242)
	assert.ErrorIs(t, err, util.ErrNotFound)
}
