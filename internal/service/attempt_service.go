package service

import (
	"context"
	"fmt"
	"strconv"
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
	"gorm.io/gorm"
)

// maxCreateRetries bounds retries after losing an attempt-number race.
const maxCreateRetries = 3

// AttemptService owns the attempt lifecycle: Open until finished, then
// immutable. Finishing scores the attempt and cascades progress.
type AttemptService struct {
	DB          *gorm.DB
	Assessments *repository.AssessmentRepository
	Attempts    *repository.AttemptRepository
	Responses   *repository.ResponseRepository
	Policy      *PolicyService
	Progress    *ProgressService
	Locker      AttemptLocker
	Grace       time.Duration

	now func() time.Time
}

func NewAttemptService(
	db *gorm.DB,
	assessments *repository.AssessmentRepository,
	attempts *repository.AttemptRepository,
	responses *repository.ResponseRepository,
	policy *PolicyService,
	progress *ProgressService,
	locker AttemptLocker,
	grace time.Duration,
) *AttemptService {
	return &AttemptService{
		DB:          db,
		Assessments: assessments,
		Attempts:    attempts,
		Responses:   responses,
		Policy:      policy,
		Progress:    progress,
		Locker:      locker,
		Grace:       grace,
		now:         time.Now,
	}
}

// FinishResult is returned by FinishAttempt.
type FinishResult struct {
	Attempt      *model.Attempt     `json:"attempt"`
	EarnedPoints float64            `json:"earnedPoints"`
	TotalPoints  float64            `json:"totalPoints"`
	Propagation  *PropagationResult `json:"propagation,omitempty"`
}

// Eligibility runs the attempt policy without creating anything.
func (s *AttemptService) Eligibility(ctx context.Context, userID, assessmentID uint) (PolicyDecision, error) {
	assessment, err := s.Assessments.FindAssessmentByID(ctx, assessmentID)
	if err != nil {
		return PolicyDecision{}, err
	}
	return s.Policy.CanStartAttempt(ctx, userID, assessment)
}

// CreateAttempt opens the next attempt for the user. The policy is checked
// in the same transaction as the insert; losing a numbering race to a
// concurrent request re-evaluates the policy.
func (s *AttemptService) CreateAttempt(ctx context.Context, userID, assessmentID uint) (attempt *model.Attempt, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.CreateAttempt",
		attribute.Int64("user_id", int64(userID)),
		attribute.Int64("assessment_id", int64(assessmentID)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	assessment, err := s.Assessments.FindAssessmentByID(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("new:%d:%d", userID, assessmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	for i := 0; i < maxCreateRetries; i++ {
		attempt, err = s.createOnce(ctx, userID, assessment)
		if err == nil {
			monitoring.AttemptsStarted.Inc()
			logger.Log.Info("attempt created",
				zap.String("attempt_id", attempt.ID),
				zap.Uint("user_id", userID),
				zap.Uint("assessment_id", assessmentID),
				zap.Int("attempt_number", attempt.AttemptNumber),
			)
			return attempt, nil
		}
		if !repository.IsDuplicateKey(err) {
			return nil, err
		}
		logger.Log.Debug("attempt number taken, retrying",
			zap.Uint("user_id", userID),
			zap.Uint("assessment_id", assessmentID),
			zap.Int("try", i+1),
		)
	}
	return nil, err
}

func (s *AttemptService) createOnce(ctx context.Context, userID uint, assessment *model.Assessment) (*model.Attempt, error) {
	var attempt *model.Attempt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		decision, err := s.Policy.WithTx(tx).CanStartAttempt(ctx, userID, assessment)
		if err != nil {
			return err
		}
		if err := decision.Err(); err != nil {
			return err
		}
		attempt = &model.Attempt{
			UserID:        userID,
			AssessmentID:  assessment.ID,
			AttemptNumber: decision.NextAttemptNumber,
			StartedAt:     s.now(),
		}
		return s.Attempts.WithTx(tx).Create(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// FinishAttempt closes an open attempt, scores it and, when passed, runs the
// progress cascade. The attempt row is locked for the whole operation so a
// concurrent second call observes the finished state and gets
// ErrAlreadyFinished. End time, score and passed commit together.
func (s *AttemptService) FinishAttempt(ctx context.Context, userID uint, attemptID string) (res *FinishResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.FinishAttempt",
		attribute.String("attempt_id", attemptID),
		attribute.Int64("user_id", int64(userID)),
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
	if err := checkOwner(attempt, userID); err != nil {
		return nil, err
	}
	if attempt.IsFinished() {
		return nil, util.ErrAlreadyFinished
	}

	bank, err := s.Assessments.LoadQuestionBank(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}

	res = &FinishResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.Attempts.WithTx(tx).FindForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}
		if locked.IsFinished() {
			return util.ErrAlreadyFinished
		}

		now := s.now()
		locked.EndedAt = &now
		score, propagation, err := s.rescore(ctx, tx, locked, bank)
		if err != nil {
			return err
		}
		res.Attempt = locked
		res.EarnedPoints = score.EarnedPoints
		res.TotalPoints = score.TotalPoints
		res.Propagation = propagation
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.AttemptsFinished.WithLabelValues(strconv.FormatBool(*res.Attempt.Passed)).Inc()
	monitoring.AttemptScore.Observe(*res.Attempt.Score)
	logger.Log.Info("attempt finished",
		zap.String("attempt_id", attemptID),
		zap.Uint("user_id", userID),
		zap.Float64("score", *res.Attempt.Score),
		zap.Bool("passed", *res.Attempt.Passed),
	)
	return res, nil
}

// rescore recomputes score and passed from the stored responses, persists
// them with the attempt's end time and cascades progress when passed. It
// must run inside tx with the attempt row locked.
func (s *AttemptService) rescore(ctx context.Context, tx *gorm.DB, attempt *model.Attempt, bank *model.Assessment) (grading.Score, *PropagationResult, error) {
	responses, err := s.Responses.WithTx(tx).ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return grading.Score{}, nil, err
	}

	score := grading.ComputeScore(bank.Questions, responses, bank.PassMark)
	attempt.Score = &score.Percent
	attempt.Passed = &score.Passed
	attempt.Responses = responses
	if err := s.Attempts.WithTx(tx).SaveResult(ctx, attempt); err != nil {
		return grading.Score{}, nil, err
	}

	if !score.Passed {
		return score, nil, nil
	}
	return score, s.Progress.propagate(ctx, tx, attempt, bank), nil
}

// GetAttempt returns the attempt with its responses and question bank as
// visible to v. Only the owner and graders may read an attempt.
func (s *AttemptService) GetAttempt(ctx context.Context, v Viewer, attemptID string) (*AttemptDetail, error) {
	attempt, err := s.Attempts.FindWithResponses(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !canReadAttempt(v, attempt) {
		logOwnershipViolation(attempt, v.UserID, "read")
		return nil, util.ErrOwnershipViolation
	}

	bank, err := s.Assessments.LoadQuestionBank(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}

	reveal := answersVisible(v, attempt, bank)
	detail := &AttemptDetail{
		ID:             attempt.ID,
		UserID:         attempt.UserID,
		AssessmentID:   attempt.AssessmentID,
		AttemptNumber:  attempt.AttemptNumber,
		StartedAt:      attempt.StartedAt,
		EndedAt:        attempt.EndedAt,
		Score:          attempt.Score,
		Passed:         attempt.Passed,
		PassMark:       bank.PassMark,
		TotalPoints:    bank.TotalPoints(),
		AnswersVisible: reveal,
		Questions:      buildQuestionViews(bank, reveal),
		Responses:      attempt.Responses,
	}
	if deadline, ok := attempt.Deadline(bank.TimeLimit, 0); ok {
		detail.Deadline = &deadline
	}
	if detail.Responses == nil {
		detail.Responses = []model.Response{}
	}
	return detail, nil
}

// ListAttempts returns the user's attempts at an assessment by number.
func (s *AttemptService) ListAttempts(ctx context.Context, userID, assessmentID uint) ([]model.Attempt, error) {
	if _, err := s.Assessments.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, err
	}
	return s.Attempts.ListByUserAndAssessment(ctx, userID, assessmentID)
}

func checkOwner(attempt *model.Attempt, userID uint) error {
	if attempt.UserID != userID {
		logOwnershipViolation(attempt, userID, "write")
		return util.ErrOwnershipViolation
	}
	return nil
}

func logOwnershipViolation(attempt *model.Attempt, userID uint, op string) {
	logger.Log.Warn("attempt ownership violation",
		zap.String("attempt_id", attempt.ID),
		zap.Uint("owner_id", attempt.UserID),
		zap.Uint("user_id", userID),
		zap.String("operation", op),
	)
}
