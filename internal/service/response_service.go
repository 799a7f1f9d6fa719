package service

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"path"
	"strconv"
	"strings"
	"time"

	"lms_assessment_backend/internal/grading"
	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/repository"
	"lms_assessment_backend/internal/util"
	"lms_assessment_backend/pkg/logger"
	"lms_assessment_backend/pkg/monitoring"
	"lms_assessment_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResponseInput is one answer as submitted by the client. Which fields are
// read depends on the question type.
type ResponseInput struct {
	QuestionID uint    `json:"questionId" binding:"required"`
	ChoiceID   *uint   `json:"choiceId,omitempty"`
	Text       *string `json:"text,omitempty"`

	fileRef  *string
	fileMeta *model.FileMeta
}

// ResponseService records answers on open attempts and grades the
// auto-gradable ones on the spot.
type ResponseService struct {
	DB          *gorm.DB
	Assessments *repository.AssessmentRepository
	Attempts    *repository.AttemptRepository
	Responses   *repository.ResponseRepository
	Storage     *StorageService
	Locker      AttemptLocker
	Grace       time.Duration

	now func() time.Time
}

func NewResponseService(
	db *gorm.DB,
	assessments *repository.AssessmentRepository,
	attempts *repository.AttemptRepository,
	responses *repository.ResponseRepository,
	storage *StorageService,
	locker AttemptLocker,
	grace time.Duration,
) *ResponseService {
	return &ResponseService{
		DB:          db,
		Assessments: assessments,
		Attempts:    attempts,
		Responses:   responses,
		Storage:     storage,
		Locker:      locker,
		Grace:       grace,
		now:         time.Now,
	}
}

// RecordResponse stores or replaces the answer to one question.
func (s *ResponseService) RecordResponse(ctx context.Context, userID uint, attemptID string, in ResponseInput) (*model.Response, error) {
	out, err := s.RecordResponses(ctx, userID, attemptID, []ResponseInput{in})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// RecordResponses stores a batch of answers atomically: either every answer
// is saved or none is.
func (s *ResponseService) RecordResponses(ctx context.Context, userID uint, attemptID string, inputs []ResponseInput) (out []model.Response, err error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no responses", util.ErrInvalidPayload)
	}

	ctx, span := tracing.StartSpan(ctx, "ResponseService.RecordResponses",
		attribute.String("attempt_id", attemptID),
		attribute.Int("count", len(inputs)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	release, err := s.Locker.Acquire(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	bank, err := s.Assessments.LoadQuestionBank(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(attempt, userID, bank); err != nil {
		return nil, err
	}

	bankChanged := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.Attempts.WithTx(tx).FindForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}
		if err := s.checkWritable(locked, userID, bank); err != nil {
			return err
		}

		out = make([]model.Response, 0, len(inputs))
		for _, in := range inputs {
			resp, created, err := s.record(ctx, tx, locked, bank, in)
			if err != nil {
				return err
			}
			bankChanged = bankChanged || created
			out = append(out, *resp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if bankChanged {
		s.Assessments.InvalidateBank(ctx, bank.ID)
	}
	for _, resp := range out {
		if q, ok := bank.FindQuestion(resp.QuestionID); ok {
			monitoring.ResponsesRecorded.WithLabelValues(string(q.Type), strconv.FormatBool(resp.IsCorrect != nil)).Inc()
		}
	}
	logger.Log.Debug("responses recorded",
		zap.String("attempt_id", attemptID),
		zap.Uint("user_id", userID),
		zap.Int("count", len(out)),
	)
	return out, nil
}

// RecordUpload stores an answer file and records it as the response to an
// essay or file_upload question. The file is removed again if recording
// fails.
func (s *ResponseService) RecordUpload(ctx context.Context, userID uint, attemptID string, questionID uint, fh *multipart.FileHeader, text *string) (*model.Response, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	bank, err := s.Assessments.LoadQuestionBank(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(attempt, userID, bank); err != nil {
		return nil, err
	}
	q, err := s.findQuestion(ctx, s.Assessments, bank, questionID)
	if err != nil {
		return nil, err
	}
	if q.Type != model.FileUpload && q.Type != model.Essay {
		return nil, fmt.Errorf("%w: %s questions do not take files", util.ErrInvalidPayload, q.Type)
	}

	stored, err := s.Storage.UploadAnswer(ctx, attemptID, questionID, fh)
	if err != nil {
		return nil, err
	}

	resp, err := s.RecordResponse(ctx, userID, attemptID, ResponseInput{
		QuestionID: questionID,
		Text:       text,
		fileRef:    &stored.URL,
		fileMeta:   &stored.Meta,
	})
	if err != nil {
		if derr := s.Storage.Delete(ctx, stored.ObjectName); derr != nil {
			logger.Log.Warn("failed to remove orphaned answer file", zap.String("object", stored.ObjectName), zap.Error(derr))
		}
		return nil, err
	}
	return resp, nil
}

// AnswerFile resolves an uploaded answer file on local storage to its path on
// disk. objectName is answers/<attemptID>/<questionID>/<file>. Only the
// attempt's owner and graders may read it, and only while one of the
// attempt's responses still references it.
func (s *ResponseService) AnswerFile(ctx context.Context, v Viewer, objectName string) (string, error) {
	objectName = path.Clean(strings.TrimPrefix(objectName, "/"))
	parts := strings.Split(objectName, "/")
	if len(parts) != 4 || parts[0] != util.AnswerUploadDir || strings.Contains(objectName, "..") {
		return "", util.ErrNotFound
	}
	diskPath, ok := s.Storage.LocalFile(objectName)
	if !ok {
		return "", util.ErrNotFound
	}

	attempt, err := s.Attempts.FindWithResponses(ctx, parts[1])
	if err != nil {
		return "", err
	}
	if !canReadAttempt(v, attempt) {
		logOwnershipViolation(attempt, v.UserID, "download")
		return "", util.ErrOwnershipViolation
	}

	ref := s.Storage.Provider.GetURL(objectName)
	for _, r := range attempt.Responses {
		if r.FileRef != nil && *r.FileRef == ref {
			return diskPath, nil
		}
	}
	return "", util.ErrNotFound
}

// checkWritable: the caller owns the attempt, it is still open and within
// its time limit plus grace.
func (s *ResponseService) checkWritable(attempt *model.Attempt, userID uint, bank *model.Assessment) error {
	if err := checkOwner(attempt, userID); err != nil {
		return err
	}
	if attempt.IsFinished() {
		return util.ErrAttemptClosed
	}
	if deadline, ok := attempt.Deadline(bank.TimeLimit, s.Grace); ok && s.now().After(deadline) {
		return util.ErrTimeLimitExceeded
	}
	return nil
}

func (s *ResponseService) findQuestion(ctx context.Context, repo *repository.AssessmentRepository, bank *model.Assessment, questionID uint) (*model.Question, error) {
	if q, ok := bank.FindQuestion(questionID); ok {
		return q, nil
	}
	exists, err := repo.QuestionExists(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("question %d: %w", questionID, util.ErrNotFound)
	}
	return nil, util.ErrQuestionMismatch
}

// record validates, grades and upserts one answer. created reports whether
// a missing true/false choice had to be added to the bank.
func (s *ResponseService) record(ctx context.Context, tx *gorm.DB, attempt *model.Attempt, bank *model.Assessment, in ResponseInput) (*model.Response, bool, error) {
	assessments := s.Assessments.WithTx(tx)
	q, err := s.findQuestion(ctx, assessments, bank, in.QuestionID)
	if err != nil {
		return nil, false, err
	}

	resp := &model.Response{AttemptID: attempt.ID, QuestionID: q.ID}
	answer, created, err := s.buildAnswer(ctx, assessments, q, in, resp)
	if err != nil {
		return nil, false, err
	}

	result, err := grading.Grade(q, answer)
	if err != nil {
		return nil, false, err
	}
	resp.IsCorrect = result.IsCorrect
	resp.PointsEarned = result.PointsEarned

	if err := s.Responses.WithTx(tx).Upsert(ctx, resp); err != nil {
		return nil, false, err
	}
	return resp, created, nil
}

// buildAnswer checks the answer against the question type and fills resp.
func (s *ResponseService) buildAnswer(ctx context.Context, assessments *repository.AssessmentRepository, q *model.Question, in ResponseInput, resp *model.Response) (grading.Answer, bool, error) {
	switch q.Type {
	case model.MultipleChoice:
		if in.ChoiceID == nil {
			return nil, false, fmt.Errorf("%w: choiceId is required", util.ErrInvalidChoice)
		}
		if _, ok := q.FindChoice(*in.ChoiceID); !ok {
			return nil, false, util.ErrInvalidChoice
		}
		resp.SelectedChoiceID = in.ChoiceID
		return grading.ChoiceAnswer{ChoiceID: in.ChoiceID}, false, nil

	case model.TrueFalse:
		choice, created, err := s.resolveTrueFalse(ctx, assessments, q, in)
		if err != nil {
			return nil, false, err
		}
		id := choice.ID
		resp.SelectedChoiceID = &id
		return grading.ChoiceAnswer{ChoiceID: &id}, created, nil

	case model.ShortAnswer:
		text := ""
		if in.Text != nil {
			text = *in.Text
		}
		resp.TextAnswer = &text
		return grading.TextAnswer{Text: text}, false, nil

	case model.Essay, model.FileUpload:
		text := ""
		if in.Text != nil {
			text = *in.Text
		}
		hasText := strings.TrimSpace(text) != ""
		hasFile := in.fileRef != nil && *in.fileRef != ""
		if q.Type == model.FileUpload && !hasText && !hasFile {
			return nil, false, fmt.Errorf("%w: a file or text is required", util.ErrInvalidPayload)
		}
		if in.Text != nil {
			resp.TextAnswer = &text
		}
		if !hasFile {
			return grading.TextAnswer{Text: text}, false, nil
		}
		resp.FileRef = in.fileRef
		if in.fileMeta != nil {
			meta, err := json.Marshal(in.fileMeta)
			if err != nil {
				return nil, false, err
			}
			resp.FileMeta = datatypes.JSON(meta)
		}
		return grading.FileAnswer{FileRef: *in.fileRef, Text: text}, false, nil
	}
	return nil, false, fmt.Errorf("%w: unsupported question type %q", util.ErrInvalidPayload, q.Type)
}

// resolveTrueFalse maps the submitted value to one of the question's two
// choices. A choice id is used as is; a text value must be "true" or
// "false" (surrounding spaces and case ignored) and match the choice with
// that label. If the authored question
// lacks that choice it is created, and is the correct one only when the
// single existing choice is not.
func (s *ResponseService) resolveTrueFalse(ctx context.Context, assessments *repository.AssessmentRepository, q *model.Question, in ResponseInput) (*model.Choice, bool, error) {
	if in.ChoiceID != nil {
		c, ok := q.FindChoice(*in.ChoiceID)
		if !ok {
			return nil, false, util.ErrInvalidChoice
		}
		return c, false, nil
	}
	if in.Text == nil {
		return nil, false, fmt.Errorf("%w: choiceId or text is required", util.ErrInvalidChoice)
	}

	// only the two labels are accepted, after trimming and case folding
	label := strings.ToLower(strings.TrimSpace(*in.Text))
	if label != "true" && label != "false" {
		return nil, false, fmt.Errorf("%w: %q is not true or false", util.ErrInvalidChoice, *in.Text)
	}
	for i := range q.Choices {
		if strings.EqualFold(strings.TrimSpace(q.Choices[i].Text), label) {
			return &q.Choices[i], false, nil
		}
	}

	choice := model.Choice{
		QuestionID:   q.ID,
		Text:         label,
		IsCorrect:    len(q.Choices) == 1 && len(q.CorrectChoices()) == 0,
		DisplayOrder: len(q.Choices),
	}
	logger.Log.Warn("true/false question missing choice, creating it",
		zap.Uint("assessment_id", q.AssessmentID),
		zap.Uint("question_id", q.ID),
		zap.String("label", label),
		zap.Bool("is_correct", choice.IsCorrect),
	)
	if err := assessments.CreateChoice(ctx, &choice); err != nil {
		return nil, false, err
	}
	q.Choices = append(q.Choices, choice)
	return &q.Choices[len(q.Choices)-1], true, nil
}
