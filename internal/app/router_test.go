package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lms_assessment_backend/internal/config"
	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/service"
	"lms_assessment_backend/internal/util"
	"lms_assessment_backend/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testSecret = "router-test-secret"
	courseID   = uint(100)
	studentID  = uint(7)
	teacherID  = uint(90)
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

type routerEnv struct {
	app *App
	db  *gorm.DB
}

func newRouterEnv(t *testing.T) *routerEnv {
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

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0", Mode: "test"},
		JWT:       config.JWTConfig{Secret: testSecret},
		Storage:   config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir(), MaxUploadMB: 1},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
	}

	a, err := New(cfg, db, nil)
	require.NoError(t, err)
	return &routerEnv{app: a, db: db}
}

func token(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *routerEnv) do(t *testing.T, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.app.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// seedQuiz creates an active single-question quiz and returns it with the id
// of its correct choice.
func (e *routerEnv) seedQuiz(t *testing.T, active bool) (*model.Assessment, uint) {
	t.Helper()
	a := &model.Assessment{
		CourseID: courseID,
		Kind:     model.KindQuiz,
		Title:    "Router quiz",
		PassMark: 50,
		Questions: []model.Question{{
			Text:   "Pick A",
			Type:   model.MultipleChoice,
			Points: 1,
			Choices: []model.Choice{
				{Text: "A", IsCorrect: true, DisplayOrder: 1},
				{Text: "B", DisplayOrder: 2},
			},
		}},
	}
	require.NoError(t, e.db.Create(a).Error)
	require.NoError(t, e.db.Model(&model.Assessment{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"is_active":               active,
		"allow_multiple_attempts": true,
	}).Error)
	return a, a.Questions[0].Choices[0].ID
}

func (e *routerEnv) enroll(t *testing.T, userID uint) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Enrollment{UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}).Error)
}

func TestHealthCheck(t *testing.T) {
	e := newRouterEnv(t)

	w, env := e.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestAuthRequired(t *testing.T) {
	e := newRouterEnv(t)

	w, _ := e.do(t, http.MethodPost, "/api/attempts", "", map[string]uint{"assessmentId": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/attempts", "not-a-jwt", map[string]uint{"assessmentId": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	e := newRouterEnv(t)
	quiz, right := e.seedQuiz(t, true)
	e.enroll(t, studentID)
	tok := token(t, studentID, model.Student)

	w, env := e.do(t, http.MethodPost, "/api/attempts", tok, map[string]uint{"assessmentId": quiz.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var attempt model.Attempt
	require.NoError(t, json.Unmarshal(env.Data, &attempt))
	assert.Equal(t, 1, attempt.AttemptNumber)

	w, _ = e.do(t, http.MethodPost, "/api/attempts/"+attempt.ID+"/responses", tok, map[string]interface{}{
		"questionId": quiz.Questions[0].ID,
		"choiceId":   right,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = e.do(t, http.MethodPatch, "/api/attempts/"+attempt.ID+"/finish", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var finished service.FinishResult
	require.NoError(t, json.Unmarshal(env.Data, &finished))
	require.NotNil(t, finished.Attempt.Score)
	assert.InDelta(t, 100.0, *finished.Attempt.Score, 0.01)
	require.NotNil(t, finished.Attempt.Passed)
	assert.True(t, *finished.Attempt.Passed)

	// a finished attempt takes no more answers
	w, _ = e.do(t, http.MethodPost, "/api/attempts/"+attempt.ID+"/responses", tok, map[string]interface{}{
		"questionId": quiz.Questions[0].ID,
		"choiceId":   right,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodGet, fmt.Sprintf("/api/assessments/%d/attempts", quiz.ID), tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Attempt
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestCreateAttemptDenied(t *testing.T) {
	e := newRouterEnv(t)
	tok := token(t, studentID, model.Student)

	inactive, _ := e.seedQuiz(t, false)
	w, env := e.do(t, http.MethodPost, "/api/attempts", tok, map[string]uint{"assessmentId": inactive.ID})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(util.DenyAssessmentInactive), env.Reason)

	active, _ := e.seedQuiz(t, true)
	w, env = e.do(t, http.MethodPost, "/api/attempts", tok, map[string]uint{"assessmentId": active.ID})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(util.DenyNotEnrolled), env.Reason)

	w, env = e.do(t, http.MethodGet, fmt.Sprintf("/api/assessments/%d/eligibility", active.ID), tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var decision service.PolicyDecision
	require.NoError(t, json.Unmarshal(env.Data, &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, util.DenyNotEnrolled, decision.Reason)
}

func TestRequestErrors(t *testing.T) {
	e := newRouterEnv(t)
	tok := token(t, studentID, model.Student)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"missing assessment id", http.MethodPost, "/api/attempts", map[string]string{}, http.StatusBadRequest},
		{"unknown assessment", http.MethodPost, "/api/attempts", map[string]uint{"assessmentId": 999}, http.StatusNotFound},
		{"unknown attempt", http.MethodGet, "/api/attempts/" + uuid.NewString(), nil, http.StatusNotFound},
		{"bad path id", http.MethodGet, "/api/assessments/abc/eligibility", nil, http.StatusBadRequest},
		{"empty response body", http.MethodPost, "/api/attempts/" + uuid.NewString() + "/responses", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := e.do(t, tt.method, tt.path, tok, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestGradingRoutesRequireTeacher(t *testing.T) {
	e := newRouterEnv(t)
	quiz, _ := e.seedQuiz(t, true)
	path := fmt.Sprintf("/api/grading/assessments/%d/pending", quiz.ID)

	w, _ := e.do(t, http.MethodGet, path, token(t, studentID, model.Student), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := e.do(t, http.MethodGet, path, token(t, teacherID, model.Teacher), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEqual(t, "", string(env.Data))

	w, _ = e.do(t, http.MethodPost, "/api/grading/responses/"+uuid.NewString(), token(t, teacherID, model.Teacher),
		map[string]interface{}{"pointsEarned": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnswerFileDownloadRequiresOwnerOrGrader(t *testing.T) {
	e := newRouterEnv(t)
	quiz, _ := e.seedQuiz(t, true)

	attempt := &model.Attempt{UserID: studentID, AssessmentID: quiz.ID, AttemptNumber: 1, StartedAt: time.Now()}
	require.NoError(t, e.db.Create(attempt).Error)

	objectName := fmt.Sprintf("%s/%s/%d/%s.txt", util.AnswerUploadDir, attempt.ID, quiz.Questions[0].ID, uuid.NewString())
	diskPath := filepath.Join(e.app.Config.Storage.LocalPath, filepath.FromSlash(objectName))
	require.NoError(t, os.MkdirAll(filepath.Dir(diskPath), 0755))
	require.NoError(t, os.WriteFile(diskPath, []byte("my answer"), 0644))

	ref := util.LocalFileRoute + objectName
	require.NoError(t, e.db.Create(&model.Response{AttemptID: attempt.ID, QuestionID: quiz.Questions[0].ID, FileRef: &ref}).Error)

	get := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, ref, nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		e.app.Router.ServeHTTP(w, req)
		return w
	}

	w := get("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(token(t, studentID+1, model.Student))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(token(t, studentID, model.Student))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "my answer", w.Body.String())

	w = get(token(t, teacherID, model.Teacher))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "my answer", w.Body.String())

	// no public mount outside /api
	req := httptest.NewRequest(http.MethodGet, "/uploads/"+objectName, nil)
	w = httptest.NewRecorder()
	e.app.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
