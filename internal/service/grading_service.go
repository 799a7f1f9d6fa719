package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/util"
	"lms_assessment_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GradeInput is a grader's verdict on an essay or file_upload response.
// IsCorrect defaults to awarding full points.
type GradeInput struct {
	Points    float64 `json:"pointsEarned" binding:"points"`
	IsCorrect *bool   `json:"isCorrect"`
	Feedback  string  `json:"feedback" binding:"max=10000"`
}

type GradeResult struct {
	Response    *model.Response    `json:"response"`
	Attempt     *model.Attempt     `json:"attempt"`
	Propagation *PropagationResult `json:"propagation,omitempty"`
}

// GradingService handles manual grading. It reuses the attempt service to
// rescore finished attempts.
type GradingService struct {
	Attempts *AttemptService

	now func() time.Time
}

func NewGradingService(attempts *AttemptService) *GradingService {
	return &GradingService{Attempts: attempts, now: time.Now}
}

// GradeResponse records points for a manually graded response. When the
// attempt is already finished its score and passed flag are recomputed,
// and a newly passing attempt propagates progress.
func (s *GradingService) GradeResponse(ctx context.Context, grader Viewer, responseID string, in GradeInput) (*GradeResult, error) {
	if !grader.Role.CanGrade() {
		return nil, util.ErrPermissionDenied
	}

	as := s.Attempts
	resp, err := as.Responses.FindByID(ctx, responseID)
	if err != nil {
		return nil, err
	}

	release, err := as.Locker.Acquire(ctx, resp.AttemptID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := as.Attempts.FindByID(ctx, resp.AttemptID)
	if err != nil {
		return nil, err
	}
	bank, err := as.Assessments.LoadQuestionBank(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	q, ok := bank.FindQuestion(resp.QuestionID)
	if !ok {
		return nil, util.ErrQuestionMismatch
	}
	if q.Type.AutoGradable() {
		return nil, fmt.Errorf("%w: %s responses are graded automatically", util.ErrInvalidPayload, q.Type)
	}
	if math.IsNaN(in.Points) || in.Points < 0 || in.Points > float64(q.Points) {
		return nil, fmt.Errorf("%w: %v not in [0, %d]", util.ErrInvalidScore, in.Points, q.Points)
	}

	result := &GradeResult{}
	err = as.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := as.Attempts.WithTx(tx).FindForUpdate(ctx, attempt.ID)
		if err != nil {
			return err
		}
		responses := as.Responses.WithTx(tx)
		current, err := responses.FindByID(ctx, responseID)
		if err != nil {
			return err
		}

		correct := in.Points >= float64(q.Points)
		if in.IsCorrect != nil {
			correct = *in.IsCorrect
		}
		now := s.now()
		graderID := grader.UserID
		current.PointsEarned = in.Points
		current.IsCorrect = &correct
		current.Feedback = in.Feedback
		current.GradedBy = &graderID
		current.GradedAt = &now
		if err := responses.SaveGrade(ctx, current); err != nil {
			return err
		}
		result.Response = current
		result.Attempt = locked

		if !locked.IsFinished() {
			return nil
		}
		_, propagation, err := as.rescore(ctx, tx, locked, bank)
		if err != nil {
			return err
		}
		result.Propagation = propagation
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("response graded",
		zap.String("response_id", responseID),
		zap.String("attempt_id", attempt.ID),
		zap.Uint("grader_id", grader.UserID),
		zap.Float64("points", in.Points),
	)
	return result, nil
}

// ListPending returns responses of finished attempts that still wait for a
// grader.
func (s *GradingService) ListPending(ctx context.Context, grader Viewer, assessmentID uint) ([]model.Response, error) {
	if !grader.Role.CanGrade() {
		return nil, util.ErrPermissionDenied
	}
	if _, err := s.Attempts.Assessments.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, err
	}
	return s.Attempts.Responses.ListPendingByAssessment(ctx, assessmentID)
}
